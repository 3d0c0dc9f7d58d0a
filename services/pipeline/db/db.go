// Package db persists pipeline outcomes and diagnostic events in
// sqlite so runs can be reviewed after the process exits.
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"log/slog"
	"time"

	"estatescout-backend/services/pipeline"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// SaveOutcomes writes one run's outcomes in a single transaction so a
// crash never leaves a half-recorded run behind.
func (s Store) SaveOutcomes(ctx context.Context, runID string, outcomes []pipeline.Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, o := range outcomes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outcomes
				(run_id, file_number, kind, reason, decedent_name, attorney, estate_value_upper, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID,
			o.FileNumber,
			o.Kind.String(),
			o.Reason,
			o.Record.DecedentName,
			o.Attorney,
			o.Record.EstateValueUpper,
			now,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

type OutcomeRow struct {
	FileNumber       string
	Kind             string
	Reason           string
	DecedentName     string
	Attorney         string
	EstateValueUpper sql.NullFloat64
}

func (s Store) ListOutcomes(ctx context.Context, runID string) ([]OutcomeRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_number, kind, reason, decedent_name, attorney, estate_value_upper
		FROM outcomes WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeRow
	for rows.Next() {
		var r OutcomeRow
		err := rows.Scan(&r.FileNumber, &r.Kind, &r.Reason, &r.DecedentName, &r.Attorney, &r.EstateValueUpper)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Sink records pipeline diagnostics. Failures to record are logged
// and swallowed, diagnostics must never take a run down.
type Sink struct {
	db *sql.DB
}

func NewSink(database *sql.DB) Sink {
	return Sink{db: database}
}

var _ pipeline.EventSink = Sink{}

func (s Sink) Record(ctx context.Context, e pipeline.Event) {
	at := e.Time
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO diagnostics (time, phase, detail, err) VALUES (?, ?, ?, ?)`,
		at.Unix(), e.Phase, e.Detail, e.Err,
	)
	if err != nil {
		slog.ErrorContext(ctx, "failed to record diagnostic", "err", err)
	}
}

// PruneDiagnostics keeps only the most recent keep rows. The table is
// append-only otherwise and would grow without bound.
func (s Store) PruneDiagnostics(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM diagnostics WHERE id NOT IN
			(SELECT id FROM diagnostics ORDER BY id DESC LIMIT ?)`,
		keep,
	)
	return err
}
