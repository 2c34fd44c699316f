package services

import (
	"context"
	"errors"
	"math"

	"scholaverse/backend/internal/repository"
)

// ErrConfigurationMissing indicates the student has not unlocked any card
// attributes yet, so no generation request can be built. No card row is
// created in this case.
var ErrConfigurationMissing = errors.New("no card attribute configuration available")

// UnitScore is one unit's scores as sent to the worker.
type UnitScore struct {
	Quiz       *float64 `json:"quiz"`
	Homework   *float64 `json:"homework"`
	Completion *float64 `json:"completion"`
}

// LearningData is the learning summary attached to a generation request.
type LearningData struct {
	UnitScores        map[string]UnitScore `json:"unit_scores"`
	OverallCompletion float64              `json:"overall_completion"`
}

// ConfigBuilder assembles the generation config for a student from their
// accumulated learning data. The scoring and unlock rule tables that decide
// which options a student may pick live outside this service; by the time a
// choice is stored it is assumed valid.
type ConfigBuilder interface {
	Build(ctx context.Context, studentID string) (map[string]string, LearningData, error)
}

// StoreConfigBuilder builds configs from the repository's stored attribute
// choices and learning records.
type StoreConfigBuilder struct {
	repo repository.Repository
}

// NewStoreConfigBuilder creates a new StoreConfigBuilder.
func NewStoreConfigBuilder(repo repository.Repository) *StoreConfigBuilder {
	return &StoreConfigBuilder{repo: repo}
}

func (b *StoreConfigBuilder) Build(ctx context.Context, studentID string) (map[string]string, LearningData, error) {
	config, err := b.repo.ListAttributeConfigs(ctx, studentID)
	if err != nil {
		return nil, LearningData{}, err
	}
	if len(config) == 0 {
		return nil, LearningData{}, ErrConfigurationMissing
	}

	records, err := b.repo.ListLearningRecords(ctx, studentID)
	if err != nil {
		return nil, LearningData{}, err
	}

	scores := make(map[string]UnitScore, len(records))
	var total float64
	var count int
	for _, rec := range records {
		scores[rec.UnitCode] = UnitScore{
			Quiz:       rec.QuizScore,
			Homework:   rec.HomeworkScore,
			Completion: rec.CompletionRate,
		}
		if rec.CompletionRate != nil {
			total += *rec.CompletionRate
			count++
		}
	}

	var overall float64
	if count > 0 {
		overall = math.Round(total/float64(count)*10) / 10
	}

	return config, LearningData{UnitScores: scores, OverallCompletion: overall}, nil
}
