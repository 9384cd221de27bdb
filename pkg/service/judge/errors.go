package judge

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrInvalidResponse means the model answered but the answer could not be read as a verdict
	ErrInvalidResponse = goerr.New("invalid judge response")
)
