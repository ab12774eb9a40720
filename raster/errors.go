package raster

import "errors"

// Errors returned by the data model. Callers discriminate with errors.Is;
// every failing operation wraps one of these with call-site context.
var (
	ErrInvalidShape         = errors.New("raster: array is not two-dimensional")
	ErrInvalidCRS           = errors.New("raster: invalid coordinate reference system")
	ErrOutOfBounds          = errors.New("raster: region does not intersect data")
	ErrUnalignedBands       = errors.New("raster: bands do not form a bandstack")
	ErrDuplicateBandName    = errors.New("raster: duplicate band name")
	ErrBandNotFound         = errors.New("raster: band not found")
	ErrUnsupportedOperator  = errors.New("raster: unsupported operator")
	ErrShapeMismatch        = errors.New("raster: operand shape mismatch")
	ErrResamplingFailed     = errors.New("raster: resampling failed")
	ErrReprojectionError    = errors.New("raster: reprojection failed")
	ErrMergeFailed          = errors.New("raster: scene merge failed")
	ErrMissingSceneMetadata = errors.New("raster: scene metadata missing")
	ErrDuplicateScene       = errors.New("raster: duplicate scene")
)
