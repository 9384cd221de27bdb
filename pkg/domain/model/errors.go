package model

import (
	"errors"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
)

// Failure kinds surfaced by the validation pipeline
var (
	ErrEmbedding   = errors.New("embedding failure")
	ErrJudgment    = errors.New("judgment failure")
	ErrRetrieval   = errors.New("retrieval failure")
	ErrPersistence = errors.New("persistence failure")
)

// Failure joins a failure kind with its cause so that errors.Is matches either of them
func Failure(kind, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}

// Lookup and validation errors
var (
	ErrNotFound          = goerr.New("not found")
	ErrNamespaceExists   = goerr.New("namespace already exists")
	ErrInvalidMetadata   = goerr.New("invalid reference metadata")
	ErrUnknownCategory   = goerr.New("unknown category")
	ErrUnexpectedState   = goerr.New("state is not an expected state of the category")
	ErrInvalidFolderPath = goerr.New("invalid folder path")
	ErrConfidenceRange   = goerr.New("confidence must be within [0, 1]")
	ErrEmptyEmbedding    = goerr.New("embedding is empty")
	ErrDimensionMismatch = goerr.New("embedding dimension mismatch")
)

// Context keys for error values
const (
	CategoryKey    = "category"
	StateKey       = "state"
	NamespaceKey   = "namespace"
	ReferenceIDKey = "reference_id"
	ConfidenceKey  = "confidence"
	NamespaceIDKey = "namespace_id"
)
