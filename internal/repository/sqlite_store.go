package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"scholaverse/backend/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS students (
	id         TEXT PRIMARY KEY,
	student_no TEXT NOT NULL UNIQUE,
	email      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	nickname   TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cards (
	id            TEXT PRIMARY KEY,
	student_id    TEXT NOT NULL REFERENCES students(id),
	status        TEXT NOT NULL,
	config        TEXT NOT NULL,
	job_id        TEXT NOT NULL DEFAULT '',
	image_url     TEXT NOT NULL DEFAULT '',
	thumbnail_url TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	border_style  TEXT NOT NULL DEFAULT '',
	level         INTEGER NOT NULL DEFAULT 0,
	is_latest     INTEGER NOT NULL DEFAULT 0,
	generated_at  TEXT,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cards_student_latest ON cards(student_id, is_latest);
CREATE TABLE IF NOT EXISTS attribute_configs (
	student_id      TEXT NOT NULL REFERENCES students(id),
	attribute_type  TEXT NOT NULL,
	attribute_value TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	PRIMARY KEY (student_id, attribute_type)
);
CREATE TABLE IF NOT EXISTS learning_records (
	student_id      TEXT NOT NULL REFERENCES students(id),
	unit_code       TEXT NOT NULL,
	quiz_score      REAL,
	homework_score  REAL,
	completion_rate REAL,
	updated_at      TEXT NOT NULL,
	PRIMARY KEY (student_id, unit_code)
);
`

// OpenSQLite opens (or creates) a SQLite database at the given path.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL keeps concurrent status reads from blocking behind writers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SQLiteStore is a SQLite implementation of the Repository interface.
// It is the default driver for single-host and development deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLiteStore and ensures the schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateCard(ctx context.Context, card *models.Card) error {
	config, err := json.Marshal(card.Config)
	if err != nil {
		return fmt.Errorf("failed to encode card config: %w", err)
	}

	now := time.Now().UTC()
	card.CreatedAt = now
	card.UpdatedAt = now
	card.IsLatest = true

	// SQLite serializes writers, so the clear-old/set-new pair inside one
	// transaction cannot interleave with a concurrent submission.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE cards SET is_latest = 0, updated_at = ? WHERE student_id = ? AND is_latest = 1`,
		now.Format(time.RFC3339Nano), card.StudentID,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cards (id, student_id, status, config, job_id, image_url, thumbnail_url,
			error_message, border_style, level, is_latest, generated_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		card.ID, card.StudentID, string(card.Status), string(config), card.JobID,
		card.ImageURL, card.ThumbnailURL, card.ErrorMessage, card.BorderStyle, card.Level,
		nullableTime(card.GeneratedAt),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	); err != nil {
		return err
	}

	return tx.Commit()
}

const sqliteCardColumns = `id, student_id, status, config, job_id, image_url, thumbnail_url,
	error_message, border_style, level, is_latest, generated_at, created_at, updated_at`

func (s *SQLiteStore) GetCard(ctx context.Context, id string) (*models.Card, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCardColumns+` FROM cards WHERE id = ?`, id)
	return scanSQLiteCard(row)
}

func (s *SQLiteStore) GetCardForStudent(ctx context.Context, id, studentID string) (*models.Card, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCardColumns+` FROM cards WHERE id = ? AND student_id = ?`, id, studentID)
	return scanSQLiteCard(row)
}

func (s *SQLiteStore) GetLatestCard(ctx context.Context, studentID string) (*models.Card, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCardColumns+` FROM cards WHERE student_id = ? AND is_latest = 1`, studentID)
	return scanSQLiteCard(row)
}

func (s *SQLiteStore) ListCards(ctx context.Context, studentID string) ([]*models.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteCardColumns+` FROM cards WHERE student_id = ? ORDER BY created_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteCards(rows)
}

func (s *SQLiteStore) ListLatestCompletedCards(ctx context.Context) ([]*models.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteCardColumns+` FROM cards WHERE is_latest = 1 AND status = ? ORDER BY level DESC, created_at DESC`,
		string(models.CardStatusCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteCards(rows)
}

func (s *SQLiteStore) MarkCardSubmitted(ctx context.Context, id, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cards SET status = ?, job_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.CardStatusGenerating), jobID, time.Now().UTC().Format(time.RFC3339Nano),
		id, string(models.CardStatusPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CompleteCard(ctx context.Context, id, imageURL, thumbnailURL string, generatedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cards SET status = ?, image_url = ?, thumbnail_url = ?, generated_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(models.CardStatusCompleted), imageURL, thumbnailURL,
		generatedAt.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano),
		id, string(models.CardStatusPending), string(models.CardStatusGenerating))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) FailCard(ctx context.Context, id, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cards SET status = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(models.CardStatusFailed), reason, time.Now().UTC().Format(time.RFC3339Nano),
		id, string(models.CardStatusPending), string(models.CardStatusGenerating))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	return s.getStudent(ctx, `id = ?`, id)
}

func (s *SQLiteStore) GetStudentByEmail(ctx context.Context, email string) (*models.Student, error) {
	return s.getStudent(ctx, `email = ?`, email)
}

func (s *SQLiteStore) getStudent(ctx context.Context, where string, arg any) (*models.Student, error) {
	var student models.Student
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, student_no, email, name, nickname, created_at, updated_at FROM students WHERE `+where, arg,
	).Scan(&student.ID, &student.StudentNo, &student.Email, &student.Name, &student.Nickname, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	student.CreatedAt = parseSQLiteTime(createdAt)
	student.UpdatedAt = parseSQLiteTime(updatedAt)
	return &student, nil
}

func (s *SQLiteStore) CreateStudent(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO students (id, student_no, email, name, nickname, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		student.ID, student.StudentNo, student.Email, student.Name, student.Nickname,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) ListAttributeConfigs(ctx context.Context, studentID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT attribute_type, attribute_value FROM attribute_configs WHERE student_id = ?`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make(map[string]string)
	for rows.Next() {
		var attrType, attrValue string
		if err := rows.Scan(&attrType, &attrValue); err != nil {
			return nil, err
		}
		configs[attrType] = attrValue
	}
	return configs, rows.Err()
}

func (s *SQLiteStore) ListLearningRecords(ctx context.Context, studentID string) ([]*models.LearningRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, unit_code, quiz_score, homework_score, completion_rate, updated_at
		 FROM learning_records WHERE student_id = ? ORDER BY unit_code`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.LearningRecord
	for rows.Next() {
		var rec models.LearningRecord
		var quiz, homework, completion sql.NullFloat64
		var updatedAt string
		if err := rows.Scan(&rec.StudentID, &rec.UnitCode, &quiz, &homework, &completion, &updatedAt); err != nil {
			return nil, err
		}
		rec.QuizScore = nullableFloat(quiz)
		rec.HomeworkScore = nullableFloat(homework)
		rec.CompletionRate = nullableFloat(completion)
		rec.UpdatedAt = parseSQLiteTime(updatedAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) UpsertAttributeConfig(ctx context.Context, cfg *models.AttributeConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attribute_configs (student_id, attribute_type, attribute_value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(student_id, attribute_type) DO UPDATE SET attribute_value = excluded.attribute_value, updated_at = excluded.updated_at`,
		cfg.StudentID, cfg.AttributeType, cfg.AttributeValue, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) UpsertLearningRecord(ctx context.Context, rec *models.LearningRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_records (student_id, unit_code, quiz_score, homework_score, completion_rate, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(student_id, unit_code) DO UPDATE SET
			quiz_score = excluded.quiz_score,
			homework_score = excluded.homework_score,
			completion_rate = excluded.completion_rate,
			updated_at = excluded.updated_at`,
		rec.StudentID, rec.UnitCode, floatArg(rec.QuizScore), floatArg(rec.HomeworkScore),
		floatArg(rec.CompletionRate), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type sqliteRow interface {
	Scan(dest ...any) error
}

func scanSQLiteCard(row sqliteRow) (*models.Card, error) {
	var card models.Card
	var status, config, createdAt, updatedAt string
	var generatedAt sql.NullString
	var isLatest int
	err := row.Scan(&card.ID, &card.StudentID, &status, &config, &card.JobID,
		&card.ImageURL, &card.ThumbnailURL, &card.ErrorMessage, &card.BorderStyle,
		&card.Level, &isLatest, &generatedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	card.Status = models.CardStatus(status)
	card.IsLatest = isLatest != 0
	if err := json.Unmarshal([]byte(config), &card.Config); err != nil {
		return nil, fmt.Errorf("failed to decode card config: %w", err)
	}
	if generatedAt.Valid {
		t := parseSQLiteTime(generatedAt.String)
		card.GeneratedAt = &t
	}
	card.CreatedAt = parseSQLiteTime(createdAt)
	card.UpdatedAt = parseSQLiteTime(updatedAt)
	return &card, nil
}

func collectSQLiteCards(rows *sql.Rows) ([]*models.Card, error) {
	var cards []*models.Card
	for rows.Next() {
		card, err := scanSQLiteCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func parseSQLiteTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func floatArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
