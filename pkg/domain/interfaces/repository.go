package interfaces

import "io"

// Repository defines the interface for data persistence
type Repository interface {
	Reference() ReferenceRepository
	Namespace() NamespaceRepository

	io.Closer
}
