package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/Guizzs26/live_polling_system/internal/model"
)

type SQLStore struct {
	DB *sql.DB
}

// NewSQLStore opens a Postgres ("postgres") or SQLite ("sqlite") database.
func NewSQLStore(dbType, dsn string) (*SQLStore, error) {
	var driver string
	switch dbType {
	case "postgres":
		driver = "pgx"
	case "sqlite":
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dbType, err)
	}
	if dbType == "sqlite" {
		// one writer at a time, and a single connection keeps :memory: databases coherent
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	return &SQLStore{DB: db}, nil
}

func (s *SQLStore) Close() error { return s.DB.Close() }

// WaitForDB pings until the database answers or the timeout passes.
func (s *SQLStore) WaitForDB(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := s.DB.PingContext(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not ready after %s: %w", timeout, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// Migrate creates the schema. Safe to call multiple times.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, st := range schema {
		if _, err := s.DB.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS poll_group (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS group_member (
		group_id TEXT NOT NULL REFERENCES poll_group(id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('admin', 'member')),
		PRIMARY KEY (group_id, participant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS poll (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		live_poll_id TEXT NOT NULL,
		text TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('MULTIPLE_CHOICE', 'FREE_RESPONSE')),
		answer_choices TEXT NOT NULL,
		correct_answer TEXT NOT NULL DEFAULT '',
		shared BOOLEAN NOT NULL DEFAULT FALSE,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_poll_group_id ON poll(group_id)`,
	`CREATE TABLE IF NOT EXISTS poll_answer (
		poll_id TEXT NOT NULL REFERENCES poll(id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL,
		answers TEXT NOT NULL,
		PRIMARY KEY (poll_id, participant_id)
	)`,
}

// CreatePoll stores the poll and every participant's answers in one
// transaction.
func (s *SQLStore) CreatePoll(ctx context.Context, rec model.PollRecord) (string, error) {
	choices, err := json.Marshal(rec.AnswerChoices)
	if err != nil {
		return "", fmt.Errorf("failed to marshal answer choices: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO poll (id, group_id, live_poll_id, text, type, answer_choices, correct_answer, shared, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, rec.GroupID, rec.LivePollID, rec.Text, string(rec.Type), string(choices), rec.CorrectAnswer, rec.Shared,
		rec.StartedAt.UTC(), rec.EndedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert poll: %w", err)
	}

	for participantID, answers := range rec.Answers {
		if len(answers) == 0 {
			continue
		}
		raw, err := json.Marshal(answers)
		if err != nil {
			return "", fmt.Errorf("failed to marshal answers: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO poll_answer (poll_id, participant_id, answers)
			VALUES ($1, $2, $3)
		`, id, participantID, string(raw))
		if err != nil {
			return "", fmt.Errorf("failed to insert answers: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit poll: %w", err)
	}
	return id, nil
}

func (s *SQLStore) GetPoll(ctx context.Context, id string) (model.PollRecord, error) {
	var (
		rec     model.PollRecord
		typ     string
		choices string
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, group_id, live_poll_id, text, type, answer_choices, correct_answer, shared, started_at, ended_at
		FROM poll
		WHERE id = $1
	`, id).Scan(&rec.ID, &rec.GroupID, &rec.LivePollID, &rec.Text, &typ, &choices, &rec.CorrectAnswer, &rec.Shared,
		&rec.StartedAt, &rec.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PollRecord{}, fmt.Errorf("poll %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.PollRecord{}, fmt.Errorf("failed to query poll: %w", err)
	}
	rec.Type = model.PollType(typ)
	if err := json.Unmarshal([]byte(choices), &rec.AnswerChoices); err != nil {
		return model.PollRecord{}, fmt.Errorf("failed to decode answer choices: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT participant_id, answers FROM poll_answer WHERE poll_id = $1`, id)
	if err != nil {
		return model.PollRecord{}, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	rec.Answers = make(map[string][]model.Choice)
	for rows.Next() {
		var participantID, raw string
		if err := rows.Scan(&participantID, &raw); err != nil {
			return model.PollRecord{}, fmt.Errorf("failed to scan answers: %w", err)
		}
		var answers []model.Choice
		if err := json.Unmarshal([]byte(raw), &answers); err != nil {
			return model.PollRecord{}, fmt.Errorf("failed to decode answers: %w", err)
		}
		rec.Answers[participantID] = answers
	}
	return rec, rows.Err()
}

func (s *SQLStore) DeletePoll(ctx context.Context, groupID, id string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM poll_answer WHERE poll_id IN (SELECT id FROM poll WHERE id = $1 AND group_id = $2)`,
		id, groupID); err != nil {
		return fmt.Errorf("failed to delete answers: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM poll WHERE id = $1 AND group_id = $2`, id, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete poll: %w", err)
	}
	if err := expectRow(res, "poll", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) MarkShared(ctx context.Context, groupID, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE poll SET shared = TRUE WHERE id = $1 AND group_id = $2`, id, groupID)
	if err != nil {
		return fmt.Errorf("failed to mark poll shared: %w", err)
	}
	return expectRow(res, "poll", id)
}

func (s *SQLStore) DeleteGroupPolls(ctx context.Context, groupID string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteGroupPolls(ctx, tx, groupID); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteGroupPolls(ctx context.Context, tx *sql.Tx, groupID string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM poll_answer WHERE poll_id IN (SELECT id FROM poll WHERE group_id = $1)
	`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group answers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM poll WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("failed to delete group polls: %w", err)
	}
	return nil
}

func (s *SQLStore) CreateGroup(ctx context.Context, g model.Group) (model.Group, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO poll_group (id, code, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, g.ID, g.Code, g.Name, g.CreatedAt)
	if err != nil {
		return model.Group{}, fmt.Errorf("failed to insert group: %w", err)
	}
	return g, nil
}

func (s *SQLStore) FindGroup(ctx context.Context, codeOrID string) (model.Group, error) {
	var g model.Group
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, code, name, created_at FROM poll_group WHERE code = $1 OR id = $2
	`, codeOrID, codeOrID).Scan(&g.ID, &g.Code, &g.Name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Group{}, fmt.Errorf("group %s: %w", codeOrID, ErrNotFound)
	}
	if err != nil {
		return model.Group{}, fmt.Errorf("failed to query group: %w", err)
	}
	return g, nil
}

// DeleteGroup removes the group with its members and persisted polls.
func (s *SQLStore) DeleteGroup(ctx context.Context, groupID string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteGroupPolls(ctx, tx, groupID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_member WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("failed to delete group members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM poll_group WHERE id = $1`, groupID); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) AddMember(ctx context.Context, groupID, participantID string, role model.Role) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO group_member (group_id, participant_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, participant_id) DO UPDATE SET role = EXCLUDED.role
	`, groupID, participantID, string(role))
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

func (s *SQLStore) MemberRole(ctx context.Context, groupID, participantID string) (model.Role, error) {
	var role string
	err := s.DB.QueryRowContext(ctx, `
		SELECT role FROM group_member WHERE group_id = $1 AND participant_id = $2
	`, groupID, participantID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("member %s of group %s: %w", participantID, groupID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query member: %w", err)
	}
	return model.Role(role), nil
}

func expectRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}
