package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

type namespaceRepository struct {
	db     *sql.DB
	tables tables
}

func scanNamespace(row interface{ Scan(...any) error }) (*model.Namespace, error) {
	var ns model.Namespace
	var id string
	if err := row.Scan(&id, &ns.Name, &ns.Description, &ns.CreatedAt, &ns.UpdatedAt); err != nil {
		return nil, err
	}
	ns.ID = types.NamespaceID(id)
	ns.CreatedAt = ns.CreatedAt.UTC()
	ns.UpdatedAt = ns.UpdatedAt.UTC()
	return &ns, nil
}

func (r *namespaceRepository) Upsert(ctx context.Context, ns *model.Namespace) (*model.Namespace, error) {
	id := ns.ID.OrDefault()
	name := ns.Name
	if name == "" {
		name = id.String()
	}
	now := time.Now().UTC()

	query := fmt.Sprintf(`INSERT INTO %s (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE SET
			updated_at = EXCLUDED.updated_at,
			description = CASE WHEN EXCLUDED.description = '' THEN %s.description ELSE EXCLUDED.description END
		RETURNING id, name, description, created_at, updated_at`, r.tables.namespaces, r.tables.namespaces)

	result, err := scanNamespace(r.db.QueryRowContext(ctx, query, id.String(), name, ns.Description, now))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert namespace", goerr.V(model.NamespaceKey, id))
	}
	return result, nil
}

func (r *namespaceRepository) Create(ctx context.Context, ns *model.Namespace) (*model.Namespace, error) {
	id := ns.ID.OrDefault()
	name := ns.Name
	if name == "" {
		name = id.String()
	}
	now := time.Now().UTC()

	query := fmt.Sprintf(`INSERT INTO %s (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, name, description, created_at, updated_at`, r.tables.namespaces)

	result, err := scanNamespace(r.db.QueryRowContext(ctx, query, id.String(), name, ns.Description, now))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, goerr.Wrap(model.ErrNamespaceExists, "namespace already exists", goerr.V(model.NamespaceKey, id))
		}
		return nil, goerr.Wrap(err, "failed to create namespace", goerr.V(model.NamespaceKey, id))
	}
	return result, nil
}

func (r *namespaceRepository) Get(ctx context.Context, id types.NamespaceID) (*model.Namespace, error) {
	query := fmt.Sprintf(`SELECT id, name, description, created_at, updated_at FROM %s WHERE id = $1`, r.tables.namespaces)

	ns, err := scanNamespace(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "namespace not found", goerr.V(model.NamespaceKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get namespace", goerr.V(model.NamespaceKey, id))
	}
	return ns, nil
}

func (r *namespaceRepository) List(ctx context.Context) ([]*model.Namespace, error) {
	query := fmt.Sprintf(`SELECT id, name, description, created_at, updated_at FROM %s ORDER BY id`, r.tables.namespaces)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list namespaces")
	}
	defer rows.Close()

	namespaces := make([]*model.Namespace, 0)
	for rows.Next() {
		ns, err := scanNamespace(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan namespace")
		}
		namespaces = append(namespaces, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate namespaces")
	}
	return namespaces, nil
}

func (r *namespaceRepository) Delete(ctx context.Context, id types.NamespaceID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.namespaces)

	res, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return goerr.Wrap(err, "failed to delete namespace", goerr.V(model.NamespaceKey, id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to get affected rows", goerr.V(model.NamespaceKey, id))
	}
	if n == 0 {
		return goerr.Wrap(model.ErrNotFound, "namespace not found", goerr.V(model.NamespaceKey, id))
	}
	return nil
}
