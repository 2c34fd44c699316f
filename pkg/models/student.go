package models

import (
	"time"
)

// Student is a roster entry. Registration binds an identity email to the
// roster row; that flow lives outside this service.
type Student struct {
	ID        string    `json:"id"`
	StudentNo string    `json:"student_no"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Nickname  string    `json:"nickname,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the nickname shown on generated cards, falling back
// to the roster name.
func (s *Student) DisplayName() string {
	if s.Nickname != "" {
		return s.Nickname
	}
	return s.Name
}

// LearningRecord holds a student's scores for one course unit.
type LearningRecord struct {
	StudentID      string     `json:"student_id"`
	UnitCode       string     `json:"unit_code"`
	QuizScore      *float64   `json:"quiz_score,omitempty"`
	HomeworkScore  *float64   `json:"homework_score,omitempty"`
	CompletionRate *float64   `json:"completion_rate,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AttributeConfig is one unlocked RPG attribute choice (race, class,
// weapon, ...) a student has made for their card.
type AttributeConfig struct {
	StudentID      string    `json:"student_id"`
	AttributeType  string    `json:"attribute_type"`
	AttributeValue string    `json:"attribute_value"`
	UpdatedAt      time.Time `json:"updated_at"`
}
