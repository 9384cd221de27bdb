package model

import (
	"time"

	"github.com/secmon-lab/argus/pkg/domain/types"
)

// Namespace is an isolation boundary for reference cases. It is created on first
// use and never expires.
type Namespace struct {
	ID          types.NamespaceID `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewNamespace builds a namespace whose ID is derived from name
func NewNamespace(name, description string, now time.Time) *Namespace {
	id := types.NewNamespaceID(name)
	if name == "" {
		name = id.String()
	}
	return &Namespace{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
