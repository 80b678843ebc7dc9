package cockroach

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id            UUID PRIMARY KEY,
		email         STRING NOT NULL,
		username      STRING NOT NULL,
		password_hash STRING NOT NULL,
		mobile        STRING NOT NULL DEFAULT '',
		role          STRING NOT NULL DEFAULT 'USER',
		status        STRING NOT NULL DEFAULT 'PENDING_APPROVAL',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT profiles_email_key UNIQUE (email),
		CONSTRAINT profiles_username_key UNIQUE (username)
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL REFERENCES profiles (id) ON DELETE CASCADE,
		name       STRING NOT NULL,
		mobile     STRING NOT NULL,
		email      STRING,
		notes      STRING,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		INDEX contacts_user_name_idx (user_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id         UUID PRIMARY KEY,
		name       STRING NOT NULL,
		email      STRING NOT NULL,
		mobile     STRING NOT NULL,
		status     STRING NOT NULL DEFAULT 'NEW',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		INDEX leads_status_idx (status, created_at DESC)
	)`,
}

// Migrate creates the tables the repositories in this package use
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
