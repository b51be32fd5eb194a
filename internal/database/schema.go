package database

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
)

// schema declares the tables and indexes the stores rely on. Unique indexes
// enforce email and name uniqueness at the database level.
var schema = []string{
	"DEFINE TABLE IF NOT EXISTS user SCHEMALESS",
	"DEFINE INDEX IF NOT EXISTS user_email ON TABLE user FIELDS email UNIQUE",
	"DEFINE INDEX IF NOT EXISTS user_name ON TABLE user FIELDS name_key UNIQUE",
	"DEFINE TABLE IF NOT EXISTS message SCHEMALESS",
	"DEFINE INDEX IF NOT EXISTS message_conversation ON TABLE message FIELDS conversation, created_at",
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *surrealdb.DB) error {
	for _, stmt := range schema {
		if err := Execute(ctx, db, stmt, nil); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
