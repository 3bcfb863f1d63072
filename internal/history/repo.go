package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/playpack/internal/apperr"
	"github.com/starford/playpack/internal/models"
)

// Build is one row of the builds table.
type Build struct {
	ID       int64                `json:"id"`
	Title    string               `json:"title"`
	Artifact string               `json:"artifact"`
	Size     int                  `json:"size"`
	Checksum string               `json:"checksum"`
	Stages   []models.StageTiming `json:"stages"`
	BuiltAt  time.Time            `json:"built_at"`
}

// RecordBuild stores a report and its per-asset sizes within a transaction.
func (db *DB) RecordBuild(r models.BuildReport) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stagesJSON, _ := json.Marshal(r.Stages)
	builtAt := r.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now().UTC()
	}

	res, err := tx.Exec(`
		INSERT INTO builds (title, artifact, size, checksum, stages, built_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Title, r.Artifact, r.Size, r.Checksum, string(stagesJSON), builtAt)
	if err != nil {
		return 0, fmt.Errorf("history: insert build: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: build id: %w", err)
	}

	if len(r.Assets) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO build_assets (build_id, path, kind, raw_size, compressed_size, encoded_size)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("history: prepare asset insert: %w", err)
		}
		defer stmt.Close()
		for _, a := range r.Assets {
			if _, err := stmt.Exec(id, a.Path, a.Kind.String(), a.RawSize, a.CompressedSize, a.EncodedSize); err != nil {
				return 0, fmt.Errorf("history: insert asset: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("history: commit: %w", err)
	}
	return id, nil
}

// LastBuild returns the most recent build of title, or apperr.ErrNotFound.
func (db *DB) LastBuild(title string) (*Build, error) {
	row := db.conn.QueryRow(`
		SELECT id, title, artifact, size, checksum, stages, built_at
		FROM builds WHERE title = ? ORDER BY id DESC LIMIT 1`, title)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history: last build of %q: %w", title, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("history: last build: %w", err)
	}
	return b, nil
}

// ListBuilds returns builds newest first. An empty title lists every project.
func (db *DB) ListBuilds(title string, limit int) ([]Build, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id, title, artifact, size, checksum, stages, built_at FROM builds`
	args := []any{}
	if title != "" {
		q += ` WHERE title = ?`
		args = append(args, title)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list builds: %w", err)
	}
	defer rows.Close()

	var out []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan build: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Assets returns the per-asset sizes recorded for a build.
func (db *DB) Assets(buildID int64) ([]models.AssetReport, error) {
	rows, err := db.conn.Query(`
		SELECT path, kind, raw_size, compressed_size, encoded_size
		FROM build_assets WHERE build_id = ? ORDER BY rowid`, buildID)
	if err != nil {
		return nil, fmt.Errorf("history: list assets: %w", err)
	}
	defer rows.Close()

	var out []models.AssetReport
	for rows.Next() {
		var (
			a    models.AssetReport
			kind string
		)
		if err := rows.Scan(&a.Path, &kind, &a.RawSize, &a.CompressedSize, &a.EncodedSize); err != nil {
			return nil, fmt.Errorf("history: scan asset: %w", err)
		}
		if a.Kind, err = models.ParseDirectiveKind(kind); err != nil {
			return nil, fmt.Errorf("history: asset %s: %w", a.Path, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(s scanner) (*Build, error) {
	var (
		b      Build
		stages string
	)
	if err := s.Scan(&b.ID, &b.Title, &b.Artifact, &b.Size, &b.Checksum, &stages, &b.BuiltAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stages), &b.Stages); err != nil {
		return nil, fmt.Errorf("decode stages: %w", err)
	}
	return &b, nil
}
