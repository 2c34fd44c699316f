package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"scholaverse/backend/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	store := NewPostgresStore(pool)
	if err := store.InitSchema(ctx); err != nil {
		t.Fatal(err)
	}

	student := &models.Student{
		ID:        uuid.New().String(),
		StudentNo: "PG001",
		Email:     "pg001@test.local",
		Name:      "PG Student",
	}
	if err := store.CreateStudent(ctx, student); err != nil {
		t.Fatal(err)
	}

	t.Run("CreateCard requires a registered student", func(t *testing.T) {
		card := &models.Card{
			ID:        uuid.New().String(),
			StudentID: uuid.New().String(),
			Status:    models.CardStatusPending,
			Config:    map[string]string{},
		}
		assert.ErrorIs(t, store.CreateCard(ctx, card), ErrNotFound)
	})

	t.Run("CreateCard keeps a single latest per student", func(t *testing.T) {
		first := &models.Card{ID: uuid.New().String(), StudentID: student.ID,
			Status: models.CardStatusPending, Config: map[string]string{"race": "elf"}}
		assert.NoError(t, store.CreateCard(ctx, first))

		second := &models.Card{ID: uuid.New().String(), StudentID: student.ID,
			Status: models.CardStatusPending, Config: map[string]string{"race": "dwarf"}}
		assert.NoError(t, store.CreateCard(ctx, second))

		latest, err := store.GetLatestCard(ctx, student.ID)
		assert.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)
		assert.Equal(t, "dwarf", latest.Config["race"])

		old, err := store.GetCard(ctx, first.ID)
		assert.NoError(t, err)
		assert.False(t, old.IsLatest)
	})

	t.Run("terminal writes are first-come only", func(t *testing.T) {
		card := &models.Card{ID: uuid.New().String(), StudentID: student.ID,
			Status: models.CardStatusPending, Config: map[string]string{}}
		assert.NoError(t, store.CreateCard(ctx, card))
		assert.NoError(t, store.MarkCardSubmitted(ctx, card.ID, "job-pg"))

		applied, err := store.CompleteCard(ctx, card.ID, "http://x/1.png", "http://x/1_thumb.png", time.Now().UTC())
		assert.NoError(t, err)
		assert.True(t, applied)

		applied, err = store.FailCard(ctx, card.ID, "late failure")
		assert.NoError(t, err)
		assert.False(t, applied)

		got, err := store.GetCard(ctx, card.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.CardStatusCompleted, got.Status)
		assert.Equal(t, "http://x/1.png", got.ImageURL)
		assert.Empty(t, got.ErrorMessage)
	})

	t.Run("ownership scoped lookup", func(t *testing.T) {
		other := &models.Student{ID: uuid.New().String(), StudentNo: "PG002",
			Email: "pg002@test.local", Name: "Other"}
		assert.NoError(t, store.CreateStudent(ctx, other))

		card, err := store.GetLatestCard(ctx, student.ID)
		assert.NoError(t, err)

		_, err = store.GetCardForStudent(ctx, card.ID, other.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("attribute configs and learning records", func(t *testing.T) {
		assert.NoError(t, store.UpsertAttributeConfig(ctx, &models.AttributeConfig{
			StudentID: student.ID, AttributeType: "class", AttributeValue: "mage"}))
		assert.NoError(t, store.UpsertAttributeConfig(ctx, &models.AttributeConfig{
			StudentID: student.ID, AttributeType: "class", AttributeValue: "warrior"}))

		configs, err := store.ListAttributeConfigs(ctx, student.ID)
		assert.NoError(t, err)
		assert.Equal(t, "warrior", configs["class"])

		quiz := 77.0
		assert.NoError(t, store.UpsertLearningRecord(ctx, &models.LearningRecord{
			StudentID: student.ID, UnitCode: "MATH101", QuizScore: &quiz}))

		records, err := store.ListLearningRecords(ctx, student.ID)
		assert.NoError(t, err)
		assert.Len(t, records, 1)
		assert.Equal(t, quiz, *records[0].QuizScore)
	})
}
