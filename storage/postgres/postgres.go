// Package postgres provides a PostgreSQL implementation of the storage
// interface for self-hosted deployments.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stitchhq/stitch/storage"
)

// PostgreSQL provides storage operations using PostgreSQL.
type PostgreSQL struct {
	db *sql.DB
}

// New creates a new PostgreSQL storage instance.
func New(db *sql.DB) *PostgreSQL {
	return &PostgreSQL{db: db}
}

// NewFromDSN creates a new PostgreSQL storage instance from a connection string.
func NewFromDSN(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PostgreSQL{db: db}, nil
}

// Close closes the database connection.
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

// Migrate creates the required database tables.
func (p *PostgreSQL) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS installations (
			installation_id BIGINT PRIMARY KEY,
			account_id BIGINT,
			org_login TEXT NOT NULL,
			installed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS review_runs (
			id SERIAL PRIMARY KEY,
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			pr_number INTEGER NOT NULL,
			head_sha TEXT NOT NULL,
			review_id BIGINT,
			check_run_id BIGINT,
			verdict TEXT,
			finding_count INTEGER NOT NULL DEFAULT 0,
			comment_count INTEGER NOT NULL DEFAULT 0,
			mapping_misses INTEGER NOT NULL DEFAULT 0,
			conclusion TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_review_runs_pr ON review_runs(owner, repo, pr_number);
	`

	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// StoreRun stores a review-run record.
func (p *PostgreSQL) StoreRun(ctx context.Context, run *storage.RunRecord) error {
	query := `
		INSERT INTO review_runs (owner, repo, pr_number, head_sha, review_id, check_run_id, verdict, finding_count, comment_count, mapping_misses, conclusion, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	`

	_, err := p.db.ExecContext(ctx, query,
		run.Owner,
		run.Repo,
		run.PRNumber,
		run.HeadSHA,
		nullableID(run.ReviewID),
		nullableID(run.CheckRunID),
		run.Verdict,
		run.FindingCount,
		run.CommentCount,
		run.MappingMisses,
		run.Conclusion,
	)
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	return nil
}

// ListRunsForPR returns all run records for a pull request, newest first.
func (p *PostgreSQL) ListRunsForPR(ctx context.Context, owner, repo string, prNumber int) ([]*storage.RunRecord, error) {
	query := `
		SELECT id, owner, repo, pr_number, head_sha, COALESCE(review_id, 0), COALESCE(check_run_id, 0), COALESCE(verdict, ''), finding_count, comment_count, mapping_misses, conclusion, created_at::text
		FROM review_runs
		WHERE owner = $1 AND repo = $2 AND pr_number = $3
		ORDER BY created_at DESC
	`

	rows, err := p.db.QueryContext(ctx, query, owner, repo, prNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*storage.RunRecord
	for rows.Next() {
		var run storage.RunRecord
		if err := rows.Scan(
			&run.ID,
			&run.Owner,
			&run.Repo,
			&run.PRNumber,
			&run.HeadSHA,
			&run.ReviewID,
			&run.CheckRunID,
			&run.Verdict,
			&run.FindingCount,
			&run.CommentCount,
			&run.MappingMisses,
			&run.Conclusion,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// SaveInstallation inserts or updates an installation record.
func (p *PostgreSQL) SaveInstallation(ctx context.Context, install *storage.Installation) error {
	query := `
		INSERT INTO installations (installation_id, account_id, org_login, installed_at)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4, '')::timestamptz, NOW()))
		ON CONFLICT (installation_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			org_login = EXCLUDED.org_login,
			updated_at = NOW()
	`

	_, err := p.db.ExecContext(ctx, query,
		install.InstallationID,
		install.AccountID,
		install.OrgLogin,
		install.InstalledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save installation: %w", err)
	}

	return nil
}

// GetInstallation fetches an installation record by id.
func (p *PostgreSQL) GetInstallation(ctx context.Context, installationID int64) (*storage.Installation, error) {
	query := `
		SELECT installation_id, COALESCE(account_id, 0), org_login, installed_at::text
		FROM installations
		WHERE installation_id = $1
	`

	var install storage.Installation
	err := p.db.QueryRowContext(ctx, query, installationID).Scan(
		&install.InstallationID,
		&install.AccountID,
		&install.OrgLogin,
		&install.InstalledAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}

	return &install, nil
}

// nullableID maps a zero id to SQL NULL.
func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
