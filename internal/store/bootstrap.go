package store

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Bootstrap creates the system tables and seeds the default admin user.
// All DDL is idempotent; Bootstrap runs on every startup.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	if err := s.seedAdminUser(ctx); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context) error {
	var count int
	err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM _users").Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf(
		"INSERT INTO _users (id, email, password_hash, roles) VALUES (%s, %s, %s, %s)",
		s.Dialect.Placeholder(1), s.Dialect.Placeholder(2), s.Dialect.Placeholder(3), s.Dialect.Placeholder(4))
	_, err = s.DB.ExecContext(ctx, sql,
		uuid.NewString(), "admin@localhost", string(hashBytes), `["admin"]`)
	if err != nil {
		return err
	}

	log.Println("WARNING: Default admin user created (admin@localhost / changeme), change the password immediately")
	return nil
}
