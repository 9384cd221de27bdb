package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/argus/pkg/cli/config"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "categories.toml")
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600)).Required()
	return path
}

func TestLoadCategoryFile(t *testing.T) {
	t.Run("adds and overrides categories", func(t *testing.T) {
		path := writeConfig(t, `
[[category]]
id = "welds"
name = "Welds"
expected_states = ["sound", "cracked"]
critical_features = ["Bead continuity"]
failure_modes = ["Porosity"]
state_aliases = { broken = "cracked" }

[[category]]
id = "threads"
name = "Bolt Threads"
expected_states = ["visible", "damaged", "painted"]
`)
		file, err := config.LoadCategoryFile(path)
		gt.NoError(t, err).Required()
		gt.Array(t, file.Categories).Length(2)

		registry, err := file.Registry()
		gt.NoError(t, err).Required()

		welds, ok := registry.Get("welds")
		gt.Bool(t, ok).True()
		gt.Value(t, welds.Name).Equal("Welds")
		state, ok := welds.ResolveState("Broken")
		gt.Bool(t, ok).True()
		gt.Value(t, state).Equal(types.State("cracked"))

		threads, err := registry.Lookup("threads")
		gt.NoError(t, err).Required()
		gt.Value(t, threads.Name).Equal("Bolt Threads")
		gt.Array(t, threads.ExpectedStates).Length(3)

		_, ok = registry.Get("corrosion")
		gt.Bool(t, ok).True()
	})

	t.Run("replaces defaults", func(t *testing.T) {
		path := writeConfig(t, `
replace_defaults = true

[[category]]
id = "welds"
name = "Welds"
expected_states = ["sound", "cracked"]
`)
		file, err := config.LoadCategoryFile(path)
		gt.NoError(t, err).Required()
		registry, err := file.Registry()
		gt.NoError(t, err).Required()

		gt.Array(t, registry.List()).Length(1)
		_, err = registry.Lookup("corrosion")
		gt.Error(t, err).Is(model.ErrUnknownCategory)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadCategoryFile(filepath.Join(t.TempDir(), "none.toml"))
		gt.Error(t, err).Is(config.ErrConfigNotFound)
	})

	t.Run("broken TOML", func(t *testing.T) {
		_, err := config.LoadCategoryFile(writeConfig(t, `[[category]`))
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})

	t.Run("duplicate ID", func(t *testing.T) {
		path := writeConfig(t, `
[[category]]
id = "welds"
name = "Welds"
expected_states = ["sound"]

[[category]]
id = "welds"
name = "Welds again"
expected_states = ["sound"]
`)
		_, err := config.LoadCategoryFile(path)
		gt.Error(t, err).Is(config.ErrDuplicateCategoryID)
	})

	t.Run("missing name", func(t *testing.T) {
		path := writeConfig(t, `
[[category]]
id = "welds"
expected_states = ["sound"]
`)
		_, err := config.LoadCategoryFile(path)
		gt.Error(t, err).Is(config.ErrMissingName)
	})

	t.Run("no expected states", func(t *testing.T) {
		path := writeConfig(t, `
[[category]]
id = "welds"
name = "Welds"
`)
		_, err := config.LoadCategoryFile(path)
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})

	t.Run("replace_defaults without categories", func(t *testing.T) {
		_, err := config.LoadCategoryFile(writeConfig(t, `replace_defaults = true`))
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})
}

func TestAppConfig_Configure(t *testing.T) {
	t.Run("built-in categories without a file", func(t *testing.T) {
		registry, err := config.NewAppConfigForTest("").Configure()
		gt.NoError(t, err).Required()
		gt.Value(t, len(registry.List())).Equal(len(model.DefaultCategories()))
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := config.NewAppConfigForTest(filepath.Join(t.TempDir(), "x.toml")).Configure()
		gt.Error(t, err).Is(config.ErrConfigNotFound)
	})
}
