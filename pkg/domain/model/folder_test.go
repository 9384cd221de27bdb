package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

func TestParseFolderPath(t *testing.T) {
	registry := model.DefaultCategoryRegistry()

	testCases := []struct {
		name     string
		path     string
		category types.CategoryID
		state    types.State
		prompt   string
	}{
		{
			name:     "prefixed category and state",
			path:     "training/03-Connector Plates/01-Straight/img_001.jpg",
			category: "connector_plates",
			state:    "straight",
			prompt:   "connector plate is straight",
		},
		{
			name:     "state without prefix",
			path:     "04-Cotter Pins/Missing",
			category: "cotter_pins",
			state:    "missing",
			prompt:   "cotter pins are missing",
		},
		{
			name:     "state alias",
			path:     "data/01-Corrosion/02-No Corrosion",
			category: "corrosion",
			state:    "clean",
			prompt:   "should show clean",
		},
		{
			name:     "misspelled category alias",
			path:     "06-Postitive Connection/01-Bolts Present",
			category: "positive_connection",
			state:    "bolts_present",
			prompt:   "bolts present",
		},
		{
			name:     "windows separators",
			path:     `C:\inspections\07-Cable Diameter\01-38inch`,
			category: "cable_diameter",
			state:    "compliant",
			prompt:   "3/8-inch",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := model.ParseFolderPath(tc.path, registry)
			gt.NoError(t, err).Required()
			gt.Value(t, cfg.Category).Equal(tc.category)
			gt.Value(t, cfg.State).Equal(tc.state)
			gt.String(t, cfg.Prompt).Contains(tc.prompt)
		})
	}
}

func TestParseFolderPath_Errors(t *testing.T) {
	registry := model.DefaultCategoryRegistry()

	t.Run("no prefixed segment", func(t *testing.T) {
		_, err := model.ParseFolderPath("images/straight/a.jpg", registry)
		gt.Error(t, err).Is(model.ErrInvalidFolderPath)
	})

	t.Run("category is the last segment", func(t *testing.T) {
		_, err := model.ParseFolderPath("images/03-Connector Plates", registry)
		gt.Error(t, err).Is(model.ErrInvalidFolderPath)
	})

	t.Run("unknown category", func(t *testing.T) {
		_, err := model.ParseFolderPath("09-Bridges/01-Standing", registry)
		gt.Error(t, err).Is(model.ErrUnknownCategory)
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := model.ParseFolderPath("03-Connector Plates/01-Twisted", registry)
		gt.Error(t, err).Is(model.ErrUnexpectedState)
	})
}
