package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// Input errors
	ErrEmptyImage      = errors.New("image is empty")
	ErrMissingCategory = errors.New("category or folder path is required")
	ErrMissingState    = errors.New("expected state is required")

	// Namespace errors
	ErrInvalidNamespace = errors.New("invalid namespace")
)

// Context keys for error values
const (
	FolderPathKey = "folder_path"
	ModeKey       = "mode"
)
