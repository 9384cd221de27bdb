package model

import (
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

var folderPrefix = regexp.MustCompile(`^\d{2}-`)

// FolderConfig is the validation setup derived from a training folder path
type FolderConfig struct {
	Category types.CategoryID
	State    types.State
	Prompt   string
}

// ParseFolderPath derives category, state and default prompt from a path laid out as
// ".../NN-Category/NN-State/...". The state segment is the one following the category.
func ParseFolderPath(path string, registry *CategoryRegistry) (*FolderConfig, error) {
	segments := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})

	idx := -1
	for i, seg := range segments {
		if folderPrefix.MatchString(seg) {
			idx = i
			break
		}
	}
	if idx < 0 || idx+1 >= len(segments) {
		return nil, goerr.Wrap(ErrInvalidFolderPath, "no category/state segments in folder path", goerr.V("path", path))
	}

	categoryLabel := folderPrefix.ReplaceAllString(segments[idx], "")
	stateLabel := folderPrefix.ReplaceAllString(segments[idx+1], "")

	cat, ok := registry.Resolve(categoryLabel)
	if !ok {
		return nil, goerr.Wrap(ErrUnknownCategory, "folder category is not registered",
			goerr.V("path", path), goerr.V(CategoryKey, types.NormalizeLabel(categoryLabel)))
	}

	state, ok := cat.ResolveState(stateLabel)
	if !ok {
		return nil, goerr.Wrap(ErrUnexpectedState, "folder state is not an expected state",
			goerr.V("path", path), goerr.V(CategoryKey, cat.ID), goerr.V(StateKey, types.NormalizeLabel(stateLabel)))
	}

	return &FolderConfig{
		Category: cat.ID,
		State:    state,
		Prompt:   cat.Prompt(state),
	}, nil
}
