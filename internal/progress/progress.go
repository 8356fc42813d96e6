// Package progress stores per-user learning-path node progress.
package progress

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutorrag/internal/supabase"
)

// DefaultTable is the progress table name.
const DefaultTable = "node_progress"

// ErrInvalidProgress is returned for rows without a user or node id.
var ErrInvalidProgress = errors.New("user_id and node_id are required")

// Progress is one node of one user's learning path.
type Progress struct {
	UserID string   `json:"user_id"`
	NodeID string   `json:"node_id"`
	Opened bool     `json:"opened"`
	Score  *float64 `json:"score"`
}

// Client is the subset of the PostgREST client the store uses.
type Client interface {
	Select(ctx context.Context, table string, out any, filters ...supabase.Filter) error
	Insert(ctx context.Context, table string, rows any) error
	Update(ctx context.Context, table string, values any, filters ...supabase.Filter) error
}

// Store reads and writes progress rows.
type Store struct {
	client Client
	table  string
	logger *zap.Logger
}

// NewStore creates a Store over table. An empty table uses DefaultTable.
func NewStore(client Client, table string, logger *zap.Logger) *Store {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, table: table, logger: logger}
}

// Update writes p, inserting the row when the (user_id, node_id) pair is new.
func (s *Store) Update(ctx context.Context, p Progress) error {
	if p.UserID == "" || p.NodeID == "" {
		return ErrInvalidProgress
	}
	key := []supabase.Filter{supabase.Eq("user_id", p.UserID), supabase.Eq("node_id", p.NodeID)}

	var existing []Progress
	if err := s.client.Select(ctx, s.table, &existing, key...); err != nil {
		return fmt.Errorf("looking up progress: %w", err)
	}

	if len(existing) > 0 {
		values := map[string]any{"opened": p.Opened, "score": p.Score}
		if err := s.client.Update(ctx, s.table, values, key...); err != nil {
			return fmt.Errorf("updating progress: %w", err)
		}
		s.logger.Debug("progress updated", zap.String("user_id", p.UserID), zap.String("node_id", p.NodeID))
		return nil
	}

	if err := s.client.Insert(ctx, s.table, p); err != nil {
		return fmt.Errorf("inserting progress: %w", err)
	}
	s.logger.Debug("progress inserted", zap.String("user_id", p.UserID), zap.String("node_id", p.NodeID))
	return nil
}

// List returns every row for userID, or an empty slice.
func (s *Store) List(ctx context.Context, userID string) ([]Progress, error) {
	if userID == "" {
		return nil, ErrInvalidProgress
	}
	rows := []Progress{}
	if err := s.client.Select(ctx, s.table, &rows, supabase.Eq("user_id", userID)); err != nil {
		return nil, fmt.Errorf("listing progress: %w", err)
	}
	if rows == nil {
		rows = []Progress{}
	}
	return rows, nil
}
