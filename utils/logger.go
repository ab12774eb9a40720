package utils

import "go.uber.org/zap"

// NewLogger builds the process logger: zap's console development logger
// in verbose mode, the production JSON logger otherwise.
func NewLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
