package render

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/algovids/algovids-agent/internal/montage"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
	UpdateStatus(ctx context.Context, id, status, errorMsg string) error
	Complete(ctx context.Context, r *Record) error
	Delete(ctx context.Context, id string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const renderColumns = `id, status, mode, video_path, narration_path, sfx_path, bgm_path,
	plan_json, segment_count, plan_duration, output_path, error, elapsed_ms, created_at, updated_at`

func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	planJSON, err := encodePlan(rec.Plan)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO renders (`+renderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Status, string(rec.Mode),
		rec.Assets.Video, rec.Assets.Narration, rec.Assets.SFX, rec.Assets.BGM,
		planJSON, rec.SegmentCount, rec.PlanDuration, rec.OutputPath, nullString(rec.Error), rec.ElapsedMs,
		rec.CreatedAt.UTC().Format(time.RFC3339), rec.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+renderColumns+` FROM renders WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+renderColumns+` FROM renders ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE renders SET status = ?, error = ?, updated_at = ? WHERE id = ?",
		status, nullString(errorMsg), time.Now().UTC().Format(time.RFC3339), id)
	return err
}

// Complete stores the outcome fields of rec: status, mode, plan, output, error and timing.
func (r *SQLiteRepository) Complete(ctx context.Context, rec *Record) error {
	planJSON, err := encodePlan(rec.Plan)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE renders SET status = ?, mode = ?, plan_json = ?, segment_count = ?, plan_duration = ?,
			output_path = ?, error = ?, elapsed_ms = ?, updated_at = ?
		WHERE id = ?
	`, rec.Status, string(rec.Mode), planJSON, rec.SegmentCount, rec.PlanDuration,
		rec.OutputPath, nullString(rec.Error), rec.ElapsedMs, time.Now().UTC().Format(time.RFC3339), rec.ID)
	return err
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM renders WHERE id = ?", id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var mode, createdAt, updatedAt string
	var planJSON, errMsg sql.NullString

	err := s.Scan(&rec.ID, &rec.Status, &mode,
		&rec.Assets.Video, &rec.Assets.Narration, &rec.Assets.SFX, &rec.Assets.BGM,
		&planJSON, &rec.SegmentCount, &rec.PlanDuration, &rec.OutputPath, &errMsg, &rec.ElapsedMs,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Mode = montage.Mode(mode)
	rec.Error = errMsg.String
	if planJSON.Valid && planJSON.String != "" {
		if err := json.Unmarshal([]byte(planJSON.String), &rec.Plan); err != nil {
			return nil, err
		}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

func encodePlan(p montage.Plan) (sql.NullString, error) {
	if len(p) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
