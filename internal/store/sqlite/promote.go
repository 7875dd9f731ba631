package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/store"
)

// PromoteGroup creates p and repoints every member to it in one transaction.
// Nothing is written unless every step succeeds.
func (s *Store) PromoteGroup(ctx context.Context, p *domain.CanonicalProduct, memberIDs []string) (int, error) {
	if len(memberIDs) == 0 {
		return 0, store.ErrInvalidInput.WithMessage("promotion requires at least one member")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	n, err := countCanonical(ctx, tx, p.Identifier)
	if err != nil {
		return 0, fmt.Errorf("count canonical: %w", err)
	}
	if n > 0 {
		return 0, store.ErrAlreadyExists
	}

	if err := insertCanonical(ctx, tx, p); err != nil {
		return 0, fmt.Errorf("create canonical: %w", err)
	}

	now := formatTime(time.Now())
	for _, id := range memberIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE unofficial_submissions
			SET canonical_id = ?, metadata = NULL, title = NULL, updated_at = ?
			WHERE id = ? AND identifier = ? AND canonical_id IS NULL`,
			p.ID, now, id, string(p.Identifier))
		if err != nil {
			return 0, fmt.Errorf("repoint submission %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected != 1 {
			return 0, store.ErrConflict.WithMessage("submission " + id + " changed during promotion")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit promotion: %w", err)
	}

	s.logger.Info("promoted group",
		"identifier", p.Identifier,
		"canonical_id", p.ID,
		"members", len(memberIDs),
	)
	return len(memberIDs), nil
}

// RepointSubmissions points every unpromoted submission for ident at
// canonicalID in a single statement.
func (s *Store) RepointSubmissions(ctx context.Context, ident domain.Identifier, canonicalID string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var target string
	err = tx.QueryRowContext(ctx,
		`SELECT identifier FROM canonical_products WHERE id = ?`, canonicalID).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if target != string(ident) {
		return 0, store.ErrInvalidInput.WithMessage("canonical product belongs to " + target)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE unofficial_submissions
		SET canonical_id = ?, metadata = NULL, title = NULL, updated_at = ?
		WHERE identifier = ? AND canonical_id IS NULL`,
		canonicalID, formatTime(time.Now()), string(ident))
	if err != nil {
		return 0, fmt.Errorf("repoint submissions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(affected), nil
}
