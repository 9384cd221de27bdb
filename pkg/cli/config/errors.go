package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrConfigNotFound      = goerr.New("configuration file not found")
	ErrInvalidConfig       = goerr.New("invalid configuration")
	ErrDuplicateCategoryID = goerr.New("duplicate category ID")
	ErrMissingName         = goerr.New("name is required")
	ErrUnknownBackend      = goerr.New("unknown backend")
	ErrMissingCredential   = goerr.New("required credential is not set")
)

// Context keys for error values
const (
	ConfigPathKey    = "config_path"
	CategoryIDKey    = "category_id"
	CategoryIndexKey = "category_index"
	BackendKey       = "backend"
	FlagKey          = "flag"
)
