package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"newsnow_bot/internal/model"
	"newsnow_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateRule inserts a new rule and populates its ID and CreatedAt.
func (s *SQLite) CreateRule(ctx context.Context, rule *model.StoredRule) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_rules (destination, time_of_day, source, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rule.Destination, rule.TimeOfDay, rule.Source, rule.CreatedBy, now,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rule.ID = id
	rule.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetRule returns a single rule by its ID.
func (s *SQLite) GetRule(ctx context.Context, id int64) (*model.StoredRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, destination, time_of_day, source, created_by, created_at
		 FROM scheduled_rules WHERE id = ?`, id,
	)
	r, err := scanRule(row)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRules returns the rules delivering to destination, oldest first.
func (s *SQLite) ListRules(ctx context.Context, destination string) ([]model.StoredRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, destination, time_of_day, source, created_by, created_at
		 FROM scheduled_rules WHERE destination = ? ORDER BY time_of_day, id`, destination,
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRules(rows)
}

// ListAllRules returns every stored rule.
func (s *SQLite) ListAllRules(ctx context.Context) ([]model.StoredRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, destination, time_of_day, source, created_by, created_at
		 FROM scheduled_rules ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query all rules: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRules(rows)
}

// DeleteRule removes a rule by its ID.
func (s *SQLite) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RuleSpecs returns every stored rule in its "HH:MM#destination#source"
// encoding, so stored and configured rules share one parser.
func (s *SQLite) RuleSpecs(ctx context.Context) ([]string, error) {
	rules, err := s.ListAllRules(ctx)
	if err != nil {
		return nil, err
	}
	specs := make([]string, 0, len(rules))
	for _, r := range rules {
		specs = append(specs, r.Spec())
	}
	return specs, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRule(row scannable) (model.StoredRule, error) {
	var r model.StoredRule
	var created string
	err := row.Scan(&r.ID, &r.Destination, &r.TimeOfDay, &r.Source, &r.CreatedBy, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, ErrNotFound
		}
		return r, fmt.Errorf("scan rule: %w", err)
	}
	r.CreatedAt, _ = time.Parse(timeLayout, created)
	return r, nil
}

func scanRules(rows *sql.Rows) ([]model.StoredRule, error) {
	var rules []model.StoredRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
