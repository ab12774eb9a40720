package catalog

import (
	"errors"
	"fmt"
	"strings"

	goeval "github.com/edisonguo/govaluate"
)

// ErrInvalidFilter marks a predicate that does not compile or evaluate.
var ErrInvalidFilter = errors.New("catalog: invalid filter expression")

// filterVariables are the parameters a predicate may reference.
var filterVariables = map[string]struct{}{
	"product_uri": {},
	"platform":    {},
	"epsg":        {},
	"cloud_cover": {},
	"path":        {},
}

// Filter is a compiled predicate over scene metadata, for example
// `cloud_cover < 30 && platform == 'S2B'`. A nil Filter matches every
// record.
type Filter struct {
	expr *goeval.EvaluableExpression
}

// NewFilter compiles an expression. A blank expression yields a nil
// filter. Variables outside the scene-metadata parameter set are
// rejected at compile time rather than at evaluation.
func NewFilter(expression string) (*Filter, error) {
	if len(strings.TrimSpace(expression)) == 0 {
		return nil, nil
	}
	expr, err := goeval.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	for _, token := range expr.Tokens() {
		if token.Kind != goeval.VARIABLE {
			continue
		}
		varName, ok := token.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: variable token '%v' failed to cast string", ErrInvalidFilter, token.Value)
		}
		if _, found := filterVariables[varName]; !found {
			return nil, fmt.Errorf("%w: variable %v is not supported", ErrInvalidFilter, varName)
		}
	}
	return &Filter{expr: expr}, nil
}

// Match evaluates the predicate against one record.
func (f *Filter) Match(rec SceneRecord) (bool, error) {
	if f == nil || f.expr == nil {
		return true, nil
	}
	parameters := map[string]interface{}{
		"product_uri": rec.ProductURI,
		"platform":    rec.Platform,
		"epsg":        float64(rec.EPSG),
		"cloud_cover": rec.CloudCover,
		"path":        rec.Path,
	}
	result, err := f.expr.Evaluate(parameters)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	val, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("%w: result '%v' is not boolean", ErrInvalidFilter, result)
	}
	return val, nil
}

// Apply keeps the records the predicate accepts, preserving order.
func (f *Filter) Apply(recs []SceneRecord) ([]SceneRecord, error) {
	if f == nil || f.expr == nil {
		return recs, nil
	}
	out := make([]SceneRecord, 0, len(recs))
	for _, r := range recs {
		ok, err := f.Match(r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}
