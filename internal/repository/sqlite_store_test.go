package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholaverse/backend/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func createTestStudent(t *testing.T, store *SQLiteStore, studentNo string) *models.Student {
	t.Helper()
	student := &models.Student{
		ID:        uuid.New().String(),
		StudentNo: studentNo,
		Email:     studentNo + "@test.local",
		Name:      "Student " + studentNo,
		Nickname:  studentNo,
	}
	require.NoError(t, store.CreateStudent(context.Background(), student))
	return student
}

func createTestCard(t *testing.T, store *SQLiteStore, studentID string) *models.Card {
	t.Helper()
	card := &models.Card{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Status:    models.CardStatusPending,
		Config:    map[string]string{"race": "elf"},
	}
	require.NoError(t, store.CreateCard(context.Background(), card))
	return card
}

func TestSQLiteStore_CreateCard_SingleLatest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	student := createTestStudent(t, store, "S001")

	first := createTestCard(t, store, student.ID)
	second := createTestCard(t, store, student.ID)

	// The new card takes over as latest; the old one is retired.
	latest, err := store.GetLatestCard(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.True(t, latest.IsLatest)

	old, err := store.GetCard(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsLatest)

	cards, err := store.ListCards(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	var latestCount int
	for _, c := range cards {
		if c.IsLatest {
			latestCount++
		}
	}
	assert.Equal(t, 1, latestCount)
}

func TestSQLiteStore_LatestScopedPerStudent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alice := createTestStudent(t, store, "S001")
	bob := createTestStudent(t, store, "S002")

	aliceCard := createTestCard(t, store, alice.ID)
	bobCard := createTestCard(t, store, bob.ID)

	// One student's submission must not retire another's latest card.
	latest, err := store.GetLatestCard(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, aliceCard.ID, latest.ID)

	latest, err = store.GetLatestCard(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, bobCard.ID, latest.ID)
}

func TestSQLiteStore_MarkCardSubmitted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	student := createTestStudent(t, store, "S001")
	card := createTestCard(t, store, student.ID)

	require.NoError(t, store.MarkCardSubmitted(ctx, card.ID, "job-1"))

	got, err := store.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardStatusGenerating, got.Status)
	assert.Equal(t, "job-1", got.JobID)

	// Only pending cards can be submitted.
	assert.ErrorIs(t, store.MarkCardSubmitted(ctx, card.ID, "job-2"), ErrNotFound)
	got, err = store.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
}

func TestSQLiteStore_CompleteCard_TerminalGuard(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	student := createTestStudent(t, store, "S001")
	card := createTestCard(t, store, student.ID)
	require.NoError(t, store.MarkCardSubmitted(ctx, card.ID, "job-1"))

	generatedAt := time.Now().UTC().Truncate(time.Second)
	applied, err := store.CompleteCard(ctx, card.ID, "http://x/1.png", "http://x/1_thumb.png", generatedAt)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := store.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardStatusCompleted, got.Status)
	assert.Equal(t, "http://x/1.png", got.ImageURL)
	require.NotNil(t, got.GeneratedAt)
	assert.True(t, got.GeneratedAt.Equal(generatedAt))

	// A duplicate delivery does not rewrite the row.
	applied, err = store.CompleteCard(ctx, card.ID, "http://x/other.png", "", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, applied)

	// Nor does a late failure overwrite the completed outcome.
	applied, err = store.FailCard(ctx, card.ID, "too late")
	require.NoError(t, err)
	assert.False(t, applied)

	got, err = store.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardStatusCompleted, got.Status)
	assert.Equal(t, "http://x/1.png", got.ImageURL)
	assert.Empty(t, got.ErrorMessage)
}

func TestSQLiteStore_FailCard(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	student := createTestStudent(t, store, "S001")
	card := createTestCard(t, store, student.ID)

	applied, err := store.FailCard(ctx, card.ID, "worker submission failed")
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := store.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardStatusFailed, got.Status)
	assert.Equal(t, "worker submission failed", got.ErrorMessage)

	// Failed is terminal too.
	applied, err = store.CompleteCard(ctx, card.ID, "http://x/1.png", "", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestSQLiteStore_GetCardForStudent_Ownership(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alice := createTestStudent(t, store, "S001")
	bob := createTestStudent(t, store, "S002")
	card := createTestCard(t, store, alice.ID)

	got, err := store.GetCardForStudent(ctx, card.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, card.ID, got.ID)

	// Someone else's card is indistinguishable from a missing one.
	_, err = store.GetCardForStudent(ctx, card.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetCardForStudent(ctx, "no-such-card", alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_GetLatestCard_NoneYet(t *testing.T) {
	store := newTestStore(t)
	student := createTestStudent(t, store, "S001")

	_, err := store.GetLatestCard(context.Background(), student.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListLatestCompletedCards(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	alice := createTestStudent(t, store, "S001")
	bob := createTestStudent(t, store, "S002")
	carol := createTestStudent(t, store, "S003")

	// Alice: completed at level 2.
	a := &models.Card{ID: uuid.New().String(), StudentID: alice.ID, Status: models.CardStatusPending,
		Config: map[string]string{}, Level: 2}
	require.NoError(t, store.CreateCard(ctx, a))
	_, err := store.CompleteCard(ctx, a.ID, "http://x/a.png", "", time.Now().UTC())
	require.NoError(t, err)

	// Bob: completed at level 5.
	b := &models.Card{ID: uuid.New().String(), StudentID: bob.ID, Status: models.CardStatusPending,
		Config: map[string]string{}, Level: 5}
	require.NoError(t, store.CreateCard(ctx, b))
	_, err = store.CompleteCard(ctx, b.ID, "http://x/b.png", "", time.Now().UTC())
	require.NoError(t, err)

	// Carol's latest is still generating, so she does not appear.
	c := createTestCard(t, store, carol.ID)
	require.NoError(t, store.MarkCardSubmitted(ctx, c.ID, "job-c"))

	hall, err := store.ListLatestCompletedCards(ctx)
	require.NoError(t, err)
	require.Len(t, hall, 2)
	assert.Equal(t, b.ID, hall[0].ID)
	assert.Equal(t, a.ID, hall[1].ID)
}

func TestSQLiteStore_Students(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	student := createTestStudent(t, store, "S001")

	byID, err := store.GetStudent(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, student.Email, byID.Email)

	byEmail, err := store.GetStudentByEmail(ctx, student.Email)
	require.NoError(t, err)
	assert.Equal(t, student.ID, byEmail.ID)

	_, err = store.GetStudentByEmail(ctx, "nobody@test.local")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_AttributeConfigsAndLearningRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	student := createTestStudent(t, store, "S001")

	require.NoError(t, store.UpsertAttributeConfig(ctx, &models.AttributeConfig{
		StudentID: student.ID, AttributeType: "race", AttributeValue: "elf"}))
	require.NoError(t, store.UpsertAttributeConfig(ctx, &models.AttributeConfig{
		StudentID: student.ID, AttributeType: "race", AttributeValue: "dwarf"}))
	require.NoError(t, store.UpsertAttributeConfig(ctx, &models.AttributeConfig{
		StudentID: student.ID, AttributeType: "border", AttributeValue: "gold"}))

	configs, err := store.ListAttributeConfigs(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"race": "dwarf", "border": "gold"}, configs)

	quiz := 92.5
	completion := 88.0
	require.NoError(t, store.UpsertLearningRecord(ctx, &models.LearningRecord{
		StudentID: student.ID, UnitCode: "MATH101", QuizScore: &quiz}))
	require.NoError(t, store.UpsertLearningRecord(ctx, &models.LearningRecord{
		StudentID: student.ID, UnitCode: "MATH101", QuizScore: &quiz, CompletionRate: &completion}))

	records, err := store.ListLearningRecords(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "MATH101", records[0].UnitCode)
	require.NotNil(t, records[0].QuizScore)
	assert.Equal(t, quiz, *records[0].QuizScore)
	require.NotNil(t, records[0].CompletionRate)
	assert.Equal(t, completion, *records[0].CompletionRate)
	assert.Nil(t, records[0].HomeworkScore)
}
