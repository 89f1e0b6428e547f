// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"newsnow_bot/internal/model"
)

// ErrNotFound is returned when a rule does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateRule(ctx context.Context, rule *model.StoredRule) error
	GetRule(ctx context.Context, id int64) (*model.StoredRule, error)
	ListRules(ctx context.Context, destination string) ([]model.StoredRule, error)
	ListAllRules(ctx context.Context) ([]model.StoredRule, error)
	DeleteRule(ctx context.Context, id int64) error

	Close() error
}
