package types

import (
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// CategoryID identifies an inspected component category (e.g. "cotter_pins")
type CategoryID string

var idPattern = regexp.MustCompile(`^[a-z0-9]+([_-][a-z0-9]+)*$`)

// Validate checks if the CategoryID is valid
func (c CategoryID) Validate() error {
	if c == "" {
		return goerr.New("category ID cannot be empty")
	}
	if !idPattern.MatchString(string(c)) {
		return goerr.New("category ID must be lowercase alphanumeric with underscores or hyphens", goerr.V("id", c))
	}
	return nil
}

// String returns the string representation of CategoryID
func (c CategoryID) String() string {
	return string(c)
}

// State is an expected condition of a component within a category (e.g. "straight")
type State string

// Validate checks if the State is valid
func (s State) Validate() error {
	if s == "" {
		return goerr.New("state cannot be empty")
	}
	if !idPattern.MatchString(string(s)) {
		return goerr.New("state must be lowercase alphanumeric with underscores or hyphens", goerr.V("state", s))
	}
	return nil
}

func (s State) String() string {
	return string(s)
}

var separatorPattern = regexp.MustCompile(`[\s-]+`)

// NormalizeLabel converts a human label such as "Connector Plates" or "Non-Compliant"
// into the identifier form used for categories and states.
func NormalizeLabel(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = separatorPattern.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
