package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/repository/firestore"
	"github.com/secmon-lab/argus/pkg/repository/memory"
	"github.com/secmon-lab/argus/pkg/repository/pinecone"
	"github.com/secmon-lab/argus/pkg/repository/postgres"
	"github.com/secmon-lab/argus/pkg/repository/qdrant"
)

func newMemoryRepository(t *testing.T) interfaces.Repository {
	return memory.New()
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	// Standard collection names are used so that the vector index from migrate applies.
	// Test data is isolated by unique namespaces.
	repo, err := firestore.New(ctx, projectID, databaseID)
	if err != nil {
		t.Fatalf("failed to create firestore repository: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("failed to close firestore repository: %v", err)
		}
	})
	return repo
}

func newPostgresRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	repo, err := postgres.New(ctx, dsn, postgres.WithTablePrefix("argus_test_"))
	if err != nil {
		t.Fatalf("failed to create postgres repository: %v", err)
	}
	if err := repo.Migrate(ctx, testDimension); err != nil {
		t.Fatalf("failed to migrate postgres schema: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("failed to close postgres repository: %v", err)
		}
	})
	return repo
}

// newPineconeRepository requires an index created with dimension testDimension and the
// cosine metric.
func newPineconeRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	apiKey := os.Getenv("TEST_PINECONE_API_KEY")
	if apiKey == "" {
		t.Skip("TEST_PINECONE_API_KEY not set")
	}

	host := os.Getenv("TEST_PINECONE_INDEX_HOST")
	if host == "" {
		t.Skip("TEST_PINECONE_INDEX_HOST not set")
	}

	repo, err := pinecone.New(context.Background(), apiKey, host, memory.New().Namespace())
	if err != nil {
		t.Fatalf("failed to create pinecone repository: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("failed to close pinecone repository: %v", err)
		}
	})
	return repo
}

func newQdrantRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	addr := os.Getenv("TEST_QDRANT_ADDR")
	if addr == "" {
		t.Skip("TEST_QDRANT_ADDR not set")
	}

	repo, err := qdrant.New(context.Background(), qdrant.Config{
		Addr:       addr,
		APIKey:     os.Getenv("TEST_QDRANT_API_KEY"),
		Collection: "argus_test_references",
		Dimension:  testDimension,
	}, memory.New().Namespace())
	if err != nil {
		t.Fatalf("failed to create qdrant repository: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("failed to close qdrant repository: %v", err)
		}
	})
	return repo
}
