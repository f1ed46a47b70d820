package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

// SQLAssessments persists assessments into Postgres or SQLite.
type SQLAssessments struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.AssessmentRepository = (*SQLAssessments)(nil)

// NewSQLAssessments wires a sql.DB implementation.
func NewSQLAssessments(db *sql.DB, dialect Dialect) *SQLAssessments {
	return &SQLAssessments{db: db, builder: builderFor(dialect)}
}

// Save inserts the assessment; an existing row for the same key and revision wins.
func (r *SQLAssessments) Save(ctx context.Context, a domain.Assessment) (bool, error) {
	if r.db == nil {
		return false, nil
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("marshal assessment: %w", err)
	}

	query, args, err := r.builder.Insert("assessments").
		Columns("id", "history_key", "revision", "content_hash", "source_id", "risk_tier", "risk_rank", "impact_areas", "created_at", "payload").
		Values(a.ID, a.Key().String(), a.Change.Revision, a.Document.ContentHash, a.Document.SourceID, string(a.RiskTier), a.RiskTier.Rank(), encodeAreas(a.ImpactAreas), formatTime(a.CreatedAt), string(payload)).
		Suffix("ON CONFLICT (history_key, revision) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert assessment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// Has reports whether the revision of key was assessed.
func (r *SQLAssessments) Has(ctx context.Context, key domain.HistoryKey, revision int) (bool, error) {
	query, args, err := r.builder.Select("1").
		From("assessments").
		Where(sq.Eq{"history_key": key.String(), "revision": revision}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select assessment revision: %w", err)
	}
	return true, nil
}

// Get loads one assessment by id.
func (r *SQLAssessments) Get(ctx context.Context, id string) (domain.Assessment, error) {
	query, args, err := r.builder.Select("payload").
		From("assessments").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("build select: %w", err)
	}

	var payload string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Assessment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("select assessment: %w", err)
	}
	return decodeAssessment(payload)
}

// ListRecent returns assessments matching q, newest first.
func (r *SQLAssessments) ListRecent(ctx context.Context, q domain.RecentQuery) ([]domain.Assessment, error) {
	sel := r.builder.Select("payload").From("assessments").OrderBy("created_at DESC", "id ASC")
	if !q.Since.IsZero() {
		sel = sel.Where(sq.GtOrEq{"created_at": formatTime(q.Since)})
	}
	if q.SourceID != "" {
		sel = sel.Where(sq.Eq{"source_id": q.SourceID})
	}
	if q.MinTier != "" {
		sel = sel.Where(sq.GtOrEq{"risk_rank": q.MinTier.Rank()})
	}
	if q.Area != "" {
		sel = sel.Where(sq.Like{"impact_areas": "%|" + string(q.Area) + "|%"})
	}
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}

	var out []domain.Assessment
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, closeRows(rows, fmt.Errorf("scan assessment: %w", err))
		}
		a, err := decodeAssessment(payload)
		if err != nil {
			return nil, closeRows(rows, err)
		}
		out = append(out, a)
	}
	if err := closeRows(rows, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeAssessment(payload string) (domain.Assessment, error) {
	var a domain.Assessment
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return domain.Assessment{}, fmt.Errorf("decode assessment: %w", err)
	}
	return a, nil
}

// encodeAreas stores areas as "|A|B|" so a LIKE filter can match whole names.
func encodeAreas(areas []domain.ImpactArea) string {
	parts := make([]string, len(areas))
	for i, a := range areas {
		parts[i] = string(a)
	}
	return "|" + strings.Join(parts, "|") + "|"
}
