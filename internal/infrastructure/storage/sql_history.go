package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

// SQLHistory persists change history in Postgres or SQLite.
type SQLHistory struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.HistoryStore = (*SQLHistory)(nil)

// NewSQLHistory wires a sql.DB implementation.
func NewSQLHistory(db *sql.DB, dialect Dialect) *SQLHistory {
	return &SQLHistory{db: db, builder: builderFor(dialect)}
}

var entryColumns = []string{"content_hash", "fingerprint", "predecessor_hash", "revision", "status", "document", "last_seen_at"}

// Get returns the latest entry for key.
func (s *SQLHistory) Get(ctx context.Context, key domain.HistoryKey) (domain.HistoryEntry, bool, error) {
	query, args, err := s.builder.Select(entryColumns...).
		From("history_entries").
		Where(sq.Eq{"history_key": key.String()}).
		ToSql()
	if err != nil {
		return domain.HistoryEntry{}, false, fmt.Errorf("build select: %w", err)
	}

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HistoryEntry{}, false, nil
	}
	if err != nil {
		return domain.HistoryEntry{}, false, fmt.Errorf("select history: %w", err)
	}
	return entry, true, nil
}

// CompareAndSet inserts or conditionally updates the latest entry and appends
// the revision row inside one transaction.
func (s *SQLHistory) CompareAndSet(ctx context.Context, key domain.HistoryKey, expectedHash string, entry domain.HistoryEntry) (bool, error) {
	doc, err := json.Marshal(entry.Document)
	if err != nil {
		return false, fmt.Errorf("marshal document: %w", err)
	}
	seen := formatTime(entry.LastSeenAt)

	var stmt sq.Sqlizer
	if expectedHash == "" {
		stmt = s.builder.Insert("history_entries").
			Columns("history_key", "source_id", "ref", "content_hash", "fingerprint", "predecessor_hash", "revision", "status", "document", "last_seen_at").
			Values(key.String(), key.SourceID, key.Ref, entry.ContentHash, entry.Fingerprint, entry.PredecessorHash, entry.Revision, string(entry.Status), string(doc), seen).
			Suffix("ON CONFLICT (history_key) DO NOTHING")
	} else {
		stmt = s.builder.Update("history_entries").
			Set("content_hash", entry.ContentHash).
			Set("fingerprint", entry.Fingerprint).
			Set("predecessor_hash", entry.PredecessorHash).
			Set("revision", entry.Revision).
			Set("status", string(entry.Status)).
			Set("document", string(doc)).
			Set("last_seen_at", seen).
			Where(sq.Eq{"history_key": key.String(), "content_hash": expectedHash})
	}

	query, args, err := stmt.ToSql()
	if err != nil {
		return false, fmt.Errorf("build write: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("write history: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected != 1 {
		_ = tx.Rollback()
		return false, nil
	}

	revQuery, revArgs, err := s.builder.Insert("history_revisions").
		Columns("history_key", "revision", "content_hash", "fingerprint", "predecessor_hash", "status", "document", "last_seen_at").
		Values(key.String(), entry.Revision, entry.ContentHash, entry.Fingerprint, entry.PredecessorHash, string(entry.Status), string(doc), seen).
		ToSql()
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("build revision insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, revQuery, revArgs...); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("insert revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// FindByFingerprint returns the oldest revision carrying fingerprint.
func (s *SQLHistory) FindByFingerprint(ctx context.Context, fingerprint string) (domain.HistoryEntry, bool, error) {
	query, args, err := s.builder.Select(entryColumns...).
		From("history_revisions").
		Where(sq.Eq{"fingerprint": fingerprint}).
		OrderBy("last_seen_at ASC", "history_key ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.HistoryEntry{}, false, fmt.Errorf("build select: %w", err)
	}

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HistoryEntry{}, false, nil
	}
	if err != nil {
		return domain.HistoryEntry{}, false, fmt.Errorf("select fingerprint: %w", err)
	}
	return entry, true, nil
}

// Revisions returns every revision for key ordered by revision number.
func (s *SQLHistory) Revisions(ctx context.Context, key domain.HistoryKey) ([]domain.HistoryEntry, error) {
	query, args, err := s.builder.Select(entryColumns...).
		From("history_revisions").
		Where(sq.Eq{"history_key": key.String()}).
		OrderBy("revision ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}

	var out []domain.HistoryEntry
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, closeRows(rows, fmt.Errorf("scan revision: %w", scanErr))
		}
		out = append(out, entry)
	}
	if err := closeRows(rows, nil); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (domain.HistoryEntry, error) {
	var (
		entry  domain.HistoryEntry
		status string
		doc    string
		seen   string
	)
	if err := row.Scan(&entry.ContentHash, &entry.Fingerprint, &entry.PredecessorHash, &entry.Revision, &status, &doc, &seen); err != nil {
		return domain.HistoryEntry{}, err
	}
	if err := json.Unmarshal([]byte(doc), &entry.Document); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("decode document: %w", err)
	}
	entry.Status = domain.ChangeStatus(status)
	entry.LastSeenAt = parseTime(seen)
	entry.Key = entry.Document.Key()
	return entry, nil
}
