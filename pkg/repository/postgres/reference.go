package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pgvector/pgvector-go"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

type referenceRepository struct {
	db         *sql.DB
	tables     tables
	namespaces *namespaceRepository
	registry   *model.CategoryRegistry
}

func scanReference(row interface{ Scan(...any) error }, extra ...any) (*model.ReferenceCase, error) {
	var (
		id, ns    string
		embedding pgvector.Vector
		metadata  []byte
		createdAt time.Time
	)
	dest := append([]any{&id, &ns, &embedding, &metadata, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	meta, err := model.UnmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	return &model.ReferenceCase{
		ID:        model.ReferenceID(id),
		Namespace: types.NamespaceID(ns),
		Metadata:  *meta,
		Embedding: embedding.Slice(),
		CreatedAt: createdAt.UTC(),
	}, nil
}

func (r *referenceRepository) FindNearest(ctx context.Context, vector []float32, category types.CategoryID, ns types.NamespaceID, limit int) ([]*model.SimilarCase, error) {
	if limit <= 0 {
		limit = model.DefaultNeighborLimit
	}

	query := fmt.Sprintf(`SELECT id, namespace, embedding, metadata, created_at, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE namespace = $2 AND category = $3 AND 1 - (embedding <=> $1) > $4
		ORDER BY embedding <=> $1, created_at, id
		LIMIT $5`, r.tables.references)

	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(vector), ns.String(), category.String(), model.SimilarityFloor, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query nearest references",
			goerr.V(model.NamespaceKey, ns),
			goerr.V(model.CategoryKey, category))
	}
	defer rows.Close()

	cases := make([]*model.SimilarCase, 0, limit)
	for rows.Next() {
		var similarity float64
		ref, err := scanReference(rows, &similarity)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan nearest reference")
		}
		cases = append(cases, model.NewSimilarCase(ref, similarity))
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate nearest references")
	}

	return model.RankSimilarCases(cases, limit), nil
}

func (r *referenceRepository) Store(ctx context.Context, ref *model.ReferenceCase) ([]*model.SimilarCase, error) {
	if err := ref.Validate(r.registry); err != nil {
		return nil, err
	}

	if _, err := r.namespaces.Upsert(ctx, &model.Namespace{ID: ref.Namespace}); err != nil {
		return nil, goerr.Wrap(err, "failed to register namespace", goerr.V(model.NamespaceKey, ref.Namespace))
	}

	created := ref.Clone()
	if created.ID == "" {
		created.ID = model.NewReferenceID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	metadata, err := model.MarshalMetadata(&created.Metadata)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, namespace, category, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, r.tables.references)
	if _, err := r.db.ExecContext(ctx, query,
		created.ID.String(),
		created.Namespace.String(),
		created.Metadata.Category.String(),
		pgvector.NewVector(created.Embedding),
		metadata,
		created.CreatedAt,
	); err != nil {
		return nil, goerr.Wrap(err, "failed to store reference case",
			goerr.V(model.NamespaceKey, created.Namespace),
			goerr.V(model.ReferenceIDKey, created.ID))
	}

	return r.FindNearest(ctx, created.Embedding, created.Metadata.Category, created.Namespace, model.DefaultNeighborLimit)
}

func (r *referenceRepository) ClearNamespace(ctx context.Context, ns types.NamespaceID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1`, r.tables.references)
	if _, err := r.db.ExecContext(ctx, query, ns.String()); err != nil {
		return goerr.Wrap(err, "failed to clear namespace", goerr.V(model.NamespaceKey, ns))
	}
	return nil
}

func (r *referenceRepository) DeleteOne(ctx context.Context, ns types.NamespaceID, id model.ReferenceID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND id = $2`, r.tables.references)

	res, err := r.db.ExecContext(ctx, query, ns.String(), id.String())
	if err != nil {
		return goerr.Wrap(err, "failed to delete reference case",
			goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to get affected rows")
	}
	if n == 0 {
		return goerr.Wrap(model.ErrNotFound, "reference case not found",
			goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}
	return nil
}

func (r *referenceRepository) List(ctx context.Context, ns types.NamespaceID, page, limit int) ([]*model.ReferenceCase, int, error) {
	offset, limit := model.Paginate(page, limit)

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE namespace = $1`, r.tables.references)
	if err := r.db.QueryRowContext(ctx, countQuery, ns.String()).Scan(&total); err != nil {
		return nil, 0, goerr.Wrap(err, "failed to count reference cases", goerr.V(model.NamespaceKey, ns))
	}

	query := fmt.Sprintf(`SELECT id, namespace, embedding, metadata, created_at
		FROM %s WHERE namespace = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, r.tables.references)

	rows, err := r.db.QueryContext(ctx, query, ns.String(), limit, offset)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to list reference cases", goerr.V(model.NamespaceKey, ns))
	}
	defer rows.Close()

	refs := make([]*model.ReferenceCase, 0, limit)
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, 0, goerr.Wrap(err, "failed to scan reference case")
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, goerr.Wrap(err, "failed to iterate reference cases")
	}

	return refs, total, nil
}

func (r *referenceRepository) Stats(ctx context.Context, ns types.NamespaceID) (*model.NamespaceStats, error) {
	query := fmt.Sprintf(`SELECT category, COUNT(*) FROM %s WHERE namespace = $1 GROUP BY category`, r.tables.references)

	rows, err := r.db.QueryContext(ctx, query, ns.String())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to aggregate reference cases", goerr.V(model.NamespaceKey, ns))
	}
	defer rows.Close()

	stats := model.NewNamespaceStats(ns, nil)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, goerr.Wrap(err, "failed to scan category count")
		}
		stats.Categories[types.CategoryID(category)] = count
		stats.TotalVectors += count
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate category counts")
	}

	return stats, nil
}
