package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// CategoryFile is the TOML category configuration. Its categories override built-in
// categories with the same ID and add the others.
type CategoryFile struct {
	// ReplaceDefaults drops the built-in categories instead of extending them
	ReplaceDefaults bool              `toml:"replace_defaults"`
	Categories      []*model.Category `toml:"category"`
}

// Validate checks every category and rejects duplicated IDs
func (f *CategoryFile) Validate() error {
	if f.ReplaceDefaults && len(f.Categories) == 0 {
		return goerr.Wrap(ErrInvalidConfig, "replace_defaults requires at least one category")
	}

	seen := make(map[types.CategoryID]bool, len(f.Categories))
	for i, cat := range f.Categories {
		if cat == nil {
			continue
		}
		if cat.Name == "" {
			return goerr.Wrap(ErrMissingName, "category name is required",
				goerr.V(CategoryIndexKey, i), goerr.V(CategoryIDKey, cat.ID))
		}
		if err := cat.Validate(); err != nil {
			return goerr.Wrap(ErrInvalidConfig, "invalid category",
				goerr.V(CategoryIndexKey, i), goerr.V(CategoryIDKey, cat.ID), goerr.V("cause", err.Error()))
		}
		if seen[cat.ID] {
			return goerr.Wrap(ErrDuplicateCategoryID, "duplicate category ID", goerr.V(CategoryIDKey, cat.ID))
		}
		seen[cat.ID] = true
	}
	return nil
}

// Registry builds the category registry described by the file
func (f *CategoryFile) Registry() (*model.CategoryRegistry, error) {
	if f.ReplaceDefaults {
		return model.NewCategoryRegistry(f.Categories...)
	}
	return model.DefaultCategoryRegistry().Merge(f.Categories...)
}

// LoadCategoryFile loads and validates the category configuration from a TOML file
func LoadCategoryFile(path string) (*CategoryFile, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "config file does not exist", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	var file CategoryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML config",
			goerr.V(ConfigPathKey, path), goerr.V("cause", err.Error()))
	}

	if err := file.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V(ConfigPathKey, path))
	}

	return &file, nil
}

// AppConfig holds the --config flag. Without a file the built-in categories are used.
type AppConfig struct {
	path string
}

func (x *AppConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Category configuration file (TOML)",
			Sources:     cli.EnvVars("ARGUS_CONFIG"),
			Destination: &x.path,
		},
	}
}

func (x AppConfig) LogValue() slog.Value {
	return slog.GroupValue(slog.String("path", x.path))
}

// Path returns the configured file path
func (x *AppConfig) Path() string {
	return x.path
}

// Configure loads the category registry
func (x *AppConfig) Configure() (*model.CategoryRegistry, error) {
	if x.path == "" {
		return model.DefaultCategoryRegistry(), nil
	}

	file, err := LoadCategoryFile(x.path)
	if err != nil {
		return nil, err
	}
	registry, err := file.Registry()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build category registry", goerr.V(ConfigPathKey, x.path))
	}
	return registry, nil
}
