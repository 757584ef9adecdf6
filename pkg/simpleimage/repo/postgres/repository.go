package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// DefaultTable holds image records unless WithTable overrides it
const DefaultTable = "image_records"

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simpleimage.Repository using PostgreSQL. Listing
// uses keyset pagination over (owner_id, created_at DESC, image_id) with
// byte-order collation so the order matches Go string comparison.
type Repository struct {
	db    DBTX
	table string // sanitized identifier
	name  string // unquoted last component, used for index names
}

// Option configures the repository
type Option func(*Repository)

// WithTable sets the table name, optionally schema qualified ("media.images")
func WithTable(name string) Option {
	return func(r *Repository) {
		if name == "" {
			return
		}
		parts := strings.Split(name, ".")
		r.table = pgx.Identifier(parts).Sanitize()
		r.name = parts[len(parts)-1]
	}
}

// New creates a new PostgreSQL repository
func New(db DBTX, opts ...Option) *Repository {
	r := &Repository{db: db}
	WithTable(DefaultTable)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool, opts ...Option) *Repository {
	return New(pool, opts...)
}

var _ simpleimage.Repository = (*Repository)(nil)

// Migrate creates the table and its indexes when missing
func (r *Repository) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			image_id     TEXT PRIMARY KEY,
			owner_id     TEXT NOT NULL,
			object_key   TEXT NOT NULL UNIQUE,
			filename     TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size_bytes   BIGINT NOT NULL,
			tags         TEXT[] NOT NULL DEFAULT '{}',
			description  TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		)`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (owner_id, created_at DESC, image_id COLLATE "C")`,
			pgx.Identifier{r.name + "_owner_created_idx"}.Sanitize(), r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (tags)`,
			pgx.Identifier{r.name + "_tags_idx"}.Sanitize(), r.table),
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return r.handlePostgresError("migrate", err)
		}
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", operation, simpleimage.ErrRecordExists)
		case "23502": // not_null_violation
			return fmt.Errorf("%s: required field %s is missing", operation, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required", operation)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

const columns = `image_id, owner_id, object_key, filename, content_type, size_bytes,
		tags, description, created_at, updated_at`

func (r *Repository) PutRecord(ctx context.Context, record *simpleimage.ImageRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, r.table, columns)

	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.db.Exec(ctx, query,
		record.ImageID, record.OwnerID, record.ObjectKey, record.Filename,
		record.ContentType, record.SizeBytes, tags, record.Description,
		record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("put record", err)
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, imageID string) (*simpleimage.ImageRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE image_id = $1`, columns, r.table)

	record, err := scanRecord(r.db.QueryRow(ctx, query, imageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleimage.ErrRecordNotFound
		}
		return nil, r.handlePostgresError("get record", err)
	}
	return record, nil
}

func (r *Repository) DeleteRecord(ctx context.Context, imageID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE image_id = $1`, r.table)

	tag, err := r.db.Exec(ctx, query, imageID)
	if err != nil {
		return r.handlePostgresError("delete record", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleimage.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) QueryByOwner(ctx context.Context, q simpleimage.OwnerQuery) (*simpleimage.RecordPage, error) {
	where := []string{"owner_id = $1"}
	args := []interface{}{q.OwnerID}
	argIndex := 2

	if q.Range.From != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *q.Range.From)
		argIndex++
	}
	if q.Range.To != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", argIndex))
		args = append(args, *q.Range.To)
		argIndex++
	}
	if q.After != nil {
		where = append(where, fmt.Sprintf(
			`(created_at < $%d OR (created_at = $%d AND image_id COLLATE "C" > $%d))`,
			argIndex, argIndex, argIndex+1))
		args = append(args, q.After.CreatedAt, q.After.ImageID)
		argIndex += 2
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY created_at DESC, image_id COLLATE "C" ASC`,
		columns, r.table, strings.Join(where, " AND "))
	if q.Limit > 0 {
		// One extra row tells whether another page exists.
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, q.Limit+1)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("query by owner", err)
	}
	defer rows.Close()

	page := &simpleimage.RecordPage{Records: []*simpleimage.ImageRecord{}}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan record", err)
		}
		page.Records = append(page.Records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("query by owner", err)
	}

	if q.Limit > 0 && len(page.Records) > q.Limit {
		page.Records = page.Records[:q.Limit]
		last := page.Records[q.Limit-1].SortKey()
		page.Next = &last
	}
	return page, nil
}

func scanRecord(row pgx.Row) (*simpleimage.ImageRecord, error) {
	var rec simpleimage.ImageRecord
	err := row.Scan(
		&rec.ImageID, &rec.OwnerID, &rec.ObjectKey, &rec.Filename,
		&rec.ContentType, &rec.SizeBytes, &rec.Tags, &rec.Description,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return &rec, nil
}
