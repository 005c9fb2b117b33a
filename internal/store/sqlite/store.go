package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"railhaul/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS ticks (
	id TEXT PRIMARY KEY,
	game_tick INTEGER NOT NULL,
	status TEXT NOT NULL,
	spent_armor REAL NOT NULL DEFAULT 0,
	score REAL NOT NULL DEFAULT 0,
	moves INTEGER NOT NULL DEFAULT 0,
	upgrade TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticks_created ON ticks(created_at);

CREATE TABLE IF NOT EXISTS tick_moves (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tick_id TEXT NOT NULL,
	train_id INTEGER NOT NULL,
	line_id INTEGER NOT NULL,
	speed INTEGER NOT NULL,
	FOREIGN KEY(tick_id) REFERENCES ticks(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_tick_moves_tick ON tick_moves(tick_id);

CREATE TABLE IF NOT EXISTS decision_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tick_id TEXT NOT NULL,
	train_id INTEGER NOT NULL,
	action TEXT NOT NULL,
	reason TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(tick_id) REFERENCES ticks(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_decision_log_tick ON decision_log(tick_id, created_at);
`

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// RecordTick stores a tick with its moves and decisions in one transaction.
func (s *Store) RecordTick(ctx context.Context, ev domain.TickEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	upgrade, err := json.Marshal(ev.Upgrade)
	if err != nil {
		return fmt.Errorf("encode upgrade: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx record tick: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO ticks(
			id, game_tick, status, spent_armor, score, moves, upgrade, error, duration_ms, created_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.GameTick, string(ev.Status), ev.SpentArmor, ev.Score, len(ev.Moves), string(upgrade),
		ev.Error, ev.Duration.Milliseconds(), ev.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}

	for _, mv := range ev.Moves {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO tick_moves(tick_id, train_id, line_id, speed) VALUES(?, ?, ?, ?)`,
			ev.ID, mv.TrainID, mv.LineID, mv.Speed,
		); err != nil {
			return fmt.Errorf("insert tick move: %w", err)
		}
	}

	for _, d := range ev.Decisions {
		payload := string(d.Payload)
		if payload == "" {
			payload = "{}"
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO decision_log(tick_id, train_id, action, reason, payload, created_at)
			VALUES(?, ?, ?, ?, ?, ?)`,
			ev.ID, d.TrainID, d.Action, d.Reason, payload, ev.CreatedAt.Unix(),
		); err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tick: %w", err)
	}
	return nil
}

func (s *Store) LogDecision(ctx context.Context, entry domain.DecisionLog) error {
	payload := string(entry.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO decision_log(tick_id, train_id, action, reason, payload, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		entry.TickID, entry.TrainID, entry.Action, entry.Reason, payload, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

func (s *Store) GetTick(ctx context.Context, tickID string) (domain.TickRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, game_tick, status, spent_armor, score, moves, upgrade, error, duration_ms, created_at
		FROM ticks WHERE id = ?`,
		tickID,
	)
	rec, err := scanTick(row)
	if err != nil {
		return domain.TickRecord{}, fmt.Errorf("get tick: %w", err)
	}
	return rec, nil
}

// ListTicks returns the most recent ticks first.
func (s *Store) ListTicks(ctx context.Context, limit int) ([]domain.TickRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, game_tick, status, spent_armor, score, moves, upgrade, error, duration_ms, created_at
		FROM ticks
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ticks: %w", err)
	}
	defer rows.Close()

	result := make([]domain.TickRecord, 0, limit)
	for rows.Next() {
		rec, err := scanTick(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return result, nil
}

func (s *Store) ListTickMoves(ctx context.Context, tickID string) ([]domain.Move, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT train_id, line_id, speed FROM tick_moves WHERE tick_id = ? ORDER BY id`,
		tickID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tick moves: %w", err)
	}
	defer rows.Close()

	var result []domain.Move
	for rows.Next() {
		var mv domain.Move
		if err := rows.Scan(&mv.TrainID, &mv.LineID, &mv.Speed); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		result = append(result, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moves: %w", err)
	}
	return result, nil
}

func (s *Store) ListTickDecisions(ctx context.Context, tickID string, limit int) ([]domain.DecisionLog, error) {
	if limit <= 0 {
		limit = 300
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, tick_id, train_id, action, reason, payload, created_at
		FROM decision_log
		WHERE tick_id = ?
		ORDER BY id
		LIMIT ?`,
		tickID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tick decisions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.DecisionLog, 0, limit)
	for rows.Next() {
		var item domain.DecisionLog
		var payload string
		var createdAt int64
		if err := rows.Scan(&item.ID, &item.TickID, &item.TrainID, &item.Action, &item.Reason, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		item.Payload = []byte(payload)
		item.CreatedAt = unixToTime(createdAt)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTick(row scanner) (domain.TickRecord, error) {
	var rec domain.TickRecord
	var status, upgrade string
	var createdAt int64
	if err := row.Scan(
		&rec.ID, &rec.GameTick, &status, &rec.SpentArmor, &rec.Score, &rec.Moves,
		&upgrade, &rec.Error, &rec.DurationMS, &createdAt,
	); err != nil {
		return domain.TickRecord{}, err
	}
	rec.Status = domain.TickStatus(status)
	rec.Upgrade = json.RawMessage(upgrade)
	rec.CreatedAt = unixToTime(createdAt)
	return rec, nil
}

func unixToTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}
