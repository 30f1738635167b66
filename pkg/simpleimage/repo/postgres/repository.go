package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-image/pkg/simpleimage"
)

// Schema creates the images table. The composite primary key mirrors the
// (id, objectPath) key of the record.
const Schema = `
CREATE TABLE IF NOT EXISTS images (
	id           TEXT        NOT NULL,
	object_path  TEXT        NOT NULL,
	object_size  TEXT        NOT NULL,
	time_added   TIMESTAMPTZ NOT NULL,
	time_updated TIMESTAMPTZ NOT NULL,
	labels       TEXT[]      NOT NULL DEFAULT '{}',
	status       TEXT        NOT NULL,
	PRIMARY KEY (id, object_path)
);
CREATE INDEX IF NOT EXISTS images_labels_idx ON images USING GIN (labels);
CREATE INDEX IF NOT EXISTS images_object_path_idx ON images (object_path);
`

const selectColumns = `id, object_path, object_size, time_added, time_updated, labels, status`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simpleimage.MetadataStore using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// EnsureSchema creates the images table and its indexes when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return r.handlePostgresError("ensure schema", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		case "42501": // insufficient_privilege
			return fmt.Errorf("%w: %s", simpleimage.ErrAccessDenied, pgErr.Message)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return simpleimage.ErrRecordNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) Put(ctx context.Context, image *simpleimage.Image) error {
	query := `
		INSERT INTO images (
			id, object_path, object_size, time_added, time_updated, labels, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id, object_path) DO UPDATE SET
			object_size = EXCLUDED.object_size,
			time_added = EXCLUDED.time_added,
			time_updated = EXCLUDED.time_updated,
			labels = EXCLUDED.labels,
			status = EXCLUDED.status`

	_, err := r.db.Exec(ctx, query,
		image.ID, image.ObjectPath, image.ObjectSize,
		image.TimeAdded, image.TimeUpdated, labelsParam(image.Labels), string(image.Status))

	if err != nil {
		return r.handlePostgresError("put image", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, key simpleimage.ImageKey) (*simpleimage.Image, error) {
	query := `SELECT ` + selectColumns + ` FROM images WHERE id = $1 AND object_path = $2`

	image, err := scanImage(r.db.QueryRow(ctx, query, key.ID, key.ObjectPath))
	if err != nil {
		return nil, r.handlePostgresError("get image", err)
	}
	return image, nil
}

func (r *Repository) Delete(ctx context.Context, key simpleimage.ImageKey) error {
	query := `DELETE FROM images WHERE id = $1 AND object_path = $2`
	if _, err := r.db.Exec(ctx, query, key.ID, key.ObjectPath); err != nil {
		return r.handlePostgresError("delete image", err)
	}
	return nil
}

func (r *Repository) Scan(ctx context.Context, filter simpleimage.ScanFilter) ([]*simpleimage.Image, error) {
	query, args := buildScanQuery(filter)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("scan images", err)
	}
	defer rows.Close()

	var images []*simpleimage.Image
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan images", err)
		}
		images = append(images, image)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("scan images", err)
	}
	return images, nil
}

func (r *Repository) UpdateLabels(ctx context.Context, key simpleimage.ImageKey, labels []string, updatedAt time.Time) error {
	query := `UPDATE images SET labels = $3, time_updated = $4 WHERE id = $1 AND object_path = $2`

	tag, err := r.db.Exec(ctx, query, key.ID, key.ObjectPath,
		labelsParam(simpleimage.NormalizeLabels(labels)), updatedAt)
	if err != nil {
		return r.handlePostgresError("update labels", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleimage.ErrRecordNotFound
	}
	return nil
}

func buildScanQuery(filter simpleimage.ScanFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if filter.ID != "" {
		args = append(args, filter.ID)
		conds = append(conds, fmt.Sprintf("id = $%d", len(args)))
	}
	if filter.ObjectPath != "" {
		args = append(args, filter.ObjectPath)
		conds = append(conds, fmt.Sprintf("object_path = $%d", len(args)))
	}
	if filter.Label != "" {
		args = append(args, filter.Label)
		conds = append(conds, fmt.Sprintf("$%d = ANY(labels)", len(args)))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + selectColumns + ` FROM images`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY time_added, id, object_path")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	return sb.String(), args
}

func scanImage(row pgx.Row) (*simpleimage.Image, error) {
	var image simpleimage.Image
	var status string
	err := row.Scan(
		&image.ID, &image.ObjectPath, &image.ObjectSize,
		&image.TimeAdded, &image.TimeUpdated, &image.Labels, &status)
	if err != nil {
		return nil, err
	}
	image.Status = simpleimage.Status(status)
	image.TimeAdded = image.TimeAdded.UTC()
	image.TimeUpdated = image.TimeUpdated.UTC()
	if len(image.Labels) == 0 {
		image.Labels = nil
	}
	return &image, nil
}

// labelsParam keeps the NOT NULL column satisfied for unset labels
func labelsParam(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}
