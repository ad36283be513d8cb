package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ReviewAnalyzer/internal/domain"
	"ReviewAnalyzer/internal/ports"
)

// Dialect selects the SQL driver and placeholder style.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

const analysesTable = "analyses"

var analysisColumns = []string{
	"id",
	"user_id",
	"source_url",
	"product_name",
	"positive_percent",
	"neutral_percent",
	"negative_percent",
	"overall_rating",
	"reviews_considered",
	"created_at",
}

// DialectFor picks Postgres for postgres:// DSNs and SQLite for everything else.
func DialectFor(dsn string) Dialect {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to the history database named by dsn.
func Open(dsn string) (*sql.DB, Dialect, error) {
	dialect := DialectFor(dsn)
	driver := "sqlite"
	if dialect == DialectPostgres {
		driver = "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// a single connection keeps :memory: databases alive and serializes writers
		db.SetMaxOpenConns(1)
	}
	return db, dialect, nil
}

// SQLRepository persists analysis history into Postgres or SQLite.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
}

var _ ports.AnalysisRepository = (*SQLRepository)(nil)

// NewSQLRepository wires a sql.DB implementation.
func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if dialect == DialectPostgres {
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &SQLRepository{db: db, dialect: dialect, builder: builder}
}

// Migrate creates the history table if it does not exist.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if r.dialect == DialectPostgres {
		schema = postgresSchema
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply %s schema: %w", r.dialect, err)
	}
	return nil
}

// Save inserts one analysis and returns its id.
func (r *SQLRepository) Save(ctx context.Context, a domain.Analysis) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query, args, err := r.builder.
		Insert(analysesTable).
		Columns(analysisColumns[1:]...).
		Values(
			a.UserID,
			a.SourceURL,
			a.ProductName,
			a.PositivePercent,
			a.NeutralPercent,
			a.NegativePercent,
			a.OverallRating,
			a.ReviewsConsidered,
			a.CreatedAt.UnixMilli(),
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert analysis: %w", err)
	}
	return id, nil
}

// ListByUser returns the user's analyses, newest first. limit <= 0 returns all of them.
func (r *SQLRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.Analysis, error) {
	stmt := r.builder.
		Select(analysisColumns...).
		From(analysesTable).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		stmt = stmt.Limit(uint64(limit))
	}

	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	result := make([]domain.Analysis, 0)
	for rows.Next() {
		var (
			a         domain.Analysis
			createdAt int64
		)
		if err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.SourceURL,
			&a.ProductName,
			&a.PositivePercent,
			&a.NeutralPercent,
			&a.NegativePercent,
			&a.OverallRating,
			&a.ReviewsConsidered,
			&createdAt,
		); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		a.CreatedAt = time.UnixMilli(createdAt).UTC()
		result = append(result, a)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}
