package usecase_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/argus/pkg/usecase"
)

func TestErrors_SentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrEmptyImage", usecase.ErrEmptyImage},
		{"ErrMissingCategory", usecase.ErrMissingCategory},
		{"ErrMissingState", usecase.ErrMissingState},
		{"ErrInvalidNamespace", usecase.ErrInvalidNamespace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, tt.err).NotNil()
			gt.String(t, tt.err.Error()).NotEqual("")
		})
	}
}

func TestErrors_ErrorsAreDistinct(t *testing.T) {
	errs := []error{
		usecase.ErrEmptyImage,
		usecase.ErrMissingCategory,
		usecase.ErrMissingState,
		usecase.ErrInvalidNamespace,
	}

	for i, a := range errs {
		for j, b := range errs {
			if i != j {
				gt.Bool(t, errors.Is(a, b)).False()
			}
		}
	}
}
