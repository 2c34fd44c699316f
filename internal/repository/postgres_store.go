package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scholaverse/backend/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of the Repository interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS students (
	id         TEXT PRIMARY KEY,
	student_no TEXT NOT NULL UNIQUE,
	email      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	nickname   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS cards (
	id            TEXT PRIMARY KEY,
	student_id    TEXT NOT NULL REFERENCES students(id),
	status        TEXT NOT NULL,
	config        JSONB NOT NULL,
	job_id        TEXT NOT NULL DEFAULT '',
	image_url     TEXT NOT NULL DEFAULT '',
	thumbnail_url TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	border_style  TEXT NOT NULL DEFAULT '',
	level         INT NOT NULL DEFAULT 0,
	is_latest     BOOLEAN NOT NULL DEFAULT FALSE,
	generated_at  TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cards_student_latest ON cards(student_id, is_latest);
CREATE TABLE IF NOT EXISTS attribute_configs (
	student_id      TEXT NOT NULL REFERENCES students(id),
	attribute_type  TEXT NOT NULL,
	attribute_value TEXT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (student_id, attribute_type)
);
CREATE TABLE IF NOT EXISTS learning_records (
	student_id      TEXT NOT NULL REFERENCES students(id),
	unit_code       TEXT NOT NULL,
	quiz_score      DOUBLE PRECISION,
	homework_score  DOUBLE PRECISION,
	completion_rate DOUBLE PRECISION,
	updated_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (student_id, unit_code)
);
`

// InitSchema creates the tables if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateCard(ctx context.Context, card *models.Card) error {
	config, err := json.Marshal(card.Config)
	if err != nil {
		return fmt.Errorf("failed to encode card config: %w", err)
	}

	now := time.Now().UTC()
	card.CreatedAt = now
	card.UpdatedAt = now
	card.IsLatest = true

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Lock the student row so two concurrent submissions for the same
	// student cannot both insert a latest card.
	var studentID string
	err = tx.QueryRow(ctx, `SELECT id FROM students WHERE id = $1 FOR UPDATE`, card.StudentID).Scan(&studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE cards SET is_latest = FALSE, updated_at = $1 WHERE student_id = $2 AND is_latest`,
		now, card.StudentID,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO cards (id, student_id, status, config, job_id, image_url, thumbnail_url,
			error_message, border_style, level, is_latest, generated_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11, $12, $13)`,
		card.ID, card.StudentID, string(card.Status), config, card.JobID,
		card.ImageURL, card.ThumbnailURL, card.ErrorMessage, card.BorderStyle, card.Level,
		card.GeneratedAt, now, now,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const pgCardColumns = `id, student_id, status, config, job_id, image_url, thumbnail_url,
	error_message, border_style, level, is_latest, generated_at, created_at, updated_at`

func (s *PostgresStore) GetCard(ctx context.Context, id string) (*models.Card, error) {
	row := s.db.QueryRow(ctx, `SELECT `+pgCardColumns+` FROM cards WHERE id = $1`, id)
	return scanPGCard(row)
}

func (s *PostgresStore) GetCardForStudent(ctx context.Context, id, studentID string) (*models.Card, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+pgCardColumns+` FROM cards WHERE id = $1 AND student_id = $2`, id, studentID)
	return scanPGCard(row)
}

func (s *PostgresStore) GetLatestCard(ctx context.Context, studentID string) (*models.Card, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+pgCardColumns+` FROM cards WHERE student_id = $1 AND is_latest`, studentID)
	return scanPGCard(row)
}

func (s *PostgresStore) ListCards(ctx context.Context, studentID string) ([]*models.Card, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+pgCardColumns+` FROM cards WHERE student_id = $1 ORDER BY created_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGCards(rows)
}

func (s *PostgresStore) ListLatestCompletedCards(ctx context.Context) ([]*models.Card, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+pgCardColumns+` FROM cards WHERE is_latest AND status = $1 ORDER BY level DESC, created_at DESC`,
		string(models.CardStatusCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGCards(rows)
}

func (s *PostgresStore) MarkCardSubmitted(ctx context.Context, id, jobID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE cards SET status = $1, job_id = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		string(models.CardStatusGenerating), jobID, time.Now().UTC(), id, string(models.CardStatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CompleteCard(ctx context.Context, id, imageURL, thumbnailURL string, generatedAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE cards SET status = $1, image_url = $2, thumbnail_url = $3, generated_at = $4, updated_at = $5
		 WHERE id = $6 AND status IN ($7, $8)`,
		string(models.CardStatusCompleted), imageURL, thumbnailURL, generatedAt.UTC(), time.Now().UTC(),
		id, string(models.CardStatusPending), string(models.CardStatusGenerating))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) FailCard(ctx context.Context, id, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE cards SET status = $1, error_message = $2, updated_at = $3
		 WHERE id = $4 AND status IN ($5, $6)`,
		string(models.CardStatusFailed), reason, time.Now().UTC(),
		id, string(models.CardStatusPending), string(models.CardStatusGenerating))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	return s.getStudent(ctx, `id = $1`, id)
}

func (s *PostgresStore) GetStudentByEmail(ctx context.Context, email string) (*models.Student, error) {
	return s.getStudent(ctx, `email = $1`, email)
}

func (s *PostgresStore) getStudent(ctx context.Context, where string, arg any) (*models.Student, error) {
	var student models.Student
	err := s.db.QueryRow(ctx,
		`SELECT id, student_no, email, name, nickname, created_at, updated_at FROM students WHERE `+where, arg,
	).Scan(&student.ID, &student.StudentNo, &student.Email, &student.Name, &student.Nickname,
		&student.CreatedAt, &student.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (s *PostgresStore) CreateStudent(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	_, err := s.db.Exec(ctx,
		`INSERT INTO students (id, student_no, email, name, nickname, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		student.ID, student.StudentNo, student.Email, student.Name, student.Nickname, now, now)
	return err
}

func (s *PostgresStore) ListAttributeConfigs(ctx context.Context, studentID string) (map[string]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT attribute_type, attribute_value FROM attribute_configs WHERE student_id = $1`, studentID)
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

func (s *PostgresStore) ListLearningRecords(ctx context.Context, studentID string) ([]*models.LearningRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT student_id, unit_code, quiz_score, homework_score, completion_rate, updated_at
		 FROM learning_records WHERE student_id = $1 ORDER BY unit_code`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.LearningRecord
	for rows.Next() {
		var rec models.LearningRecord
		if err := rows.Scan(&rec.StudentID, &rec.UnitCode, &rec.QuizScore, &rec.HomeworkScore,
			&rec.CompletionRate, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) UpsertAttributeConfig(ctx context.Context, cfg *models.AttributeConfig) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO attribute_configs (student_id, attribute_type, attribute_value, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (student_id, attribute_type) DO UPDATE SET attribute_value = EXCLUDED.attribute_value, updated_at = EXCLUDED.updated_at`,
		cfg.StudentID, cfg.AttributeType, cfg.AttributeValue, time.Now().UTC())
	return err
}

func (s *PostgresStore) UpsertLearningRecord(ctx context.Context, rec *models.LearningRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO learning_records (student_id, unit_code, quiz_score, homework_score, completion_rate, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (student_id, unit_code) DO UPDATE SET
			quiz_score = EXCLUDED.quiz_score,
			homework_score = EXCLUDED.homework_score,
			completion_rate = EXCLUDED.completion_rate,
			updated_at = EXCLUDED.updated_at`,
		rec.StudentID, rec.UnitCode, rec.QuizScore, rec.HomeworkScore, rec.CompletionRate, time.Now().UTC())
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanPGCard(row pgx.Row) (*models.Card, error) {
	var card models.Card
	var status string
	var config []byte
	err := row.Scan(&card.ID, &card.StudentID, &status, &config, &card.JobID,
		&card.ImageURL, &card.ThumbnailURL, &card.ErrorMessage, &card.BorderStyle,
		&card.Level, &card.IsLatest, &card.GeneratedAt, &card.CreatedAt, &card.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	card.Status = models.CardStatus(status)
	if err := json.Unmarshal(config, &card.Config); err != nil {
		return nil, fmt.Errorf("failed to decode card config: %w", err)
	}
	return &card, nil
}

func collectPGCards(rows pgx.Rows) ([]*models.Card, error) {
	var cards []*models.Card
	for rows.Next() {
		card, err := scanPGCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}
