// forbidden_word_repository.go implements ForbiddenWordRepository, the word
// list new module names are screened against.
package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ForbiddenWordRepository handles database operations for forbidden words
type ForbiddenWordRepository struct {
	db *sqlx.DB
}

// NewForbiddenWordRepository creates a new forbidden word repository
func NewForbiddenWordRepository(db *sqlx.DB) *ForbiddenWordRepository {
	return &ForbiddenWordRepository{db: db}
}

// IsForbidden reports whether any stored word occurs as a substring of name.
func (r *ForbiddenWordRepository) IsForbidden(ctx context.Context, name string) (bool, error) {
	var forbidden bool
	query := `SELECT EXISTS (SELECT 1 FROM forbidden_words WHERE strpos($1, word) > 0)`
	if err := r.db.GetContext(ctx, &forbidden, query, name); err != nil {
		return false, fmt.Errorf("failed to check forbidden words: %w", err)
	}
	return forbidden, nil
}

// ReplaceAll swaps the stored list for words in one transaction. Words are
// lowercased and trimmed; blanks and duplicates are dropped.
func (r *ForbiddenWordRepository) ReplaceAll(ctx context.Context, words []string) (int, error) {
	clean := NormalizeWords(words)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM forbidden_words`); err != nil {
		return 0, fmt.Errorf("failed to clear forbidden words: %w", err)
	}
	if len(clean) > 0 {
		query := `INSERT INTO forbidden_words (word) SELECT unnest($1::text[]) ON CONFLICT DO NOTHING`
		if _, err := tx.ExecContext(ctx, query, pq.Array(clean)); err != nil {
			return 0, fmt.Errorf("failed to insert forbidden words: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit forbidden words: %w", err)
	}
	return len(clean), nil
}

// Count returns the number of stored words.
func (r *ForbiddenWordRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM forbidden_words`); err != nil {
		return 0, fmt.Errorf("failed to count forbidden words: %w", err)
	}
	return n, nil
}

// NormalizeWords lowercases, trims and de-duplicates a word list, keeping
// first occurrences in order. Lines starting with # are comments.
func NormalizeWords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
