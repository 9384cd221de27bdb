package types

import (
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// NamespaceID isolates one organization's or project's reference cases from another's
type NamespaceID string

// DefaultNamespace is used when a request does not name a namespace
const DefaultNamespace NamespaceID = "_default_"

var (
	namespaceInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)
	namespacePattern      = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// NewNamespaceID derives a namespace ID from a display name: lowercased, with every
// run of non alphanumeric characters replaced by "_".
func NewNamespaceID(name string) NamespaceID {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return DefaultNamespace
	}
	return NamespaceID(namespaceInvalidChars.ReplaceAllString(s, "_"))
}

// OrDefault returns DefaultNamespace for an empty ID
func (n NamespaceID) OrDefault() NamespaceID {
	if n == "" {
		return DefaultNamespace
	}
	return n
}

// Validate checks if the NamespaceID is valid
func (n NamespaceID) Validate() error {
	if n == "" {
		return goerr.New("namespace ID cannot be empty")
	}
	if !namespacePattern.MatchString(string(n)) {
		return goerr.New("namespace ID must be lowercase alphanumeric with underscores", goerr.V("namespace", n))
	}
	return nil
}

func (n NamespaceID) String() string {
	return string(n)
}
