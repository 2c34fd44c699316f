package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"scholaverse/backend/internal/config"
	"scholaverse/backend/internal/logging"
	"scholaverse/backend/internal/repository"
	"scholaverse/backend/pkg/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var demoStudents = []struct {
	StudentNo string
	Email     string
	Name      string
	Nickname  string
	Attrs     map[string]string
	Units     map[string]float64
}{
	{
		StudentNo: "DEMO001",
		Email:     "aria@demo.scholaverse.local",
		Name:      "Aria Chen",
		Nickname:  "Aria",
		Attrs:     map[string]string{"race": "elf", "class": "mage", "border": "gold"},
		Units:     map[string]float64{"MATH101": 92.5, "SCI102": 88.0},
	},
	{
		StudentNo: "DEMO002",
		Email:     "ben@demo.scholaverse.local",
		Name:      "Ben Okafor",
		Nickname:  "Ben",
		Attrs:     map[string]string{"race": "dwarf", "class": "warrior", "border": "silver"},
		Units:     map[string]float64{"MATH101": 74.0},
	},
	{
		StudentNo: "DEMO003",
		Email:     "cleo@demo.scholaverse.local",
		Name:      "Cleo Park",
		Nickname:  "Cleo",
		Attrs:     map[string]string{"race": "human", "class": "ranger", "border": "bronze"},
		Units:     map[string]float64{"SCI102": 81.5, "ART103": 95.0},
	},
}

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	var repo repository.Repository
	var cleanup func()

	root := &cobra.Command{
		Use:   "seed",
		Short: "Seed demo data into the card service database",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			repo, cleanup, err = openStore(ctx, cfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cleanup != nil {
				cleanup()
			}
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "students",
		Short: "Create the demo students with attribute configs and learning records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return seedStudents(ctx, repo, logger)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "cards",
		Short: "Create a placeholder completed card for each demo student",
		RunE: func(cmd *cobra.Command, args []string) error {
			return seedCards(ctx, repo, logger)
		},
	})

	if err := root.Execute(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func seedStudents(ctx context.Context, repo repository.Repository, logger *logging.Logger) error {
	for _, d := range demoStudents {
		student, err := repo.GetStudentByEmail(ctx, d.Email)
		if errors.Is(err, repository.ErrNotFound) {
			student = &models.Student{
				ID:        uuid.New().String(),
				StudentNo: d.StudentNo,
				Email:     d.Email,
				Name:      d.Name,
				Nickname:  d.Nickname,
			}
			if err := repo.CreateStudent(ctx, student); err != nil {
				return fmt.Errorf("failed to create student %s: %w", d.StudentNo, err)
			}
			logger.Info("Seeded student %s (%s)", d.StudentNo, student.ID)
		} else if err != nil {
			return err
		} else {
			logger.Info("Skipping existing student %s", d.StudentNo)
		}

		for attrType, attrValue := range d.Attrs {
			cfg := &models.AttributeConfig{
				StudentID:      student.ID,
				AttributeType:  attrType,
				AttributeValue: attrValue,
			}
			if err := repo.UpsertAttributeConfig(ctx, cfg); err != nil {
				return fmt.Errorf("failed to upsert attribute %s for %s: %w", attrType, d.StudentNo, err)
			}
		}

		for unit, score := range d.Units {
			s := score
			completion := 100.0
			rec := &models.LearningRecord{
				StudentID:      student.ID,
				UnitCode:       unit,
				QuizScore:      &s,
				CompletionRate: &completion,
			}
			if err := repo.UpsertLearningRecord(ctx, rec); err != nil {
				return fmt.Errorf("failed to upsert learning record %s for %s: %w", unit, d.StudentNo, err)
			}
		}
	}
	logger.Info("Student seeding complete!")
	return nil
}

// seedCards gives each demo student one completed card so the gallery and
// hall pages have something to show before the worker has ever run.
func seedCards(ctx context.Context, repo repository.Repository, logger *logging.Logger) error {
	for _, d := range demoStudents {
		student, err := repo.GetStudentByEmail(ctx, d.Email)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("student %s not seeded yet, run 'seed students' first", d.StudentNo)
		}
		if err != nil {
			return err
		}

		if _, err := repo.GetLatestCard(ctx, student.ID); err == nil {
			logger.Info("Skipping %s, already has a card", d.StudentNo)
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		card := &models.Card{
			ID:          uuid.New().String(),
			StudentID:   student.ID,
			Status:      models.CardStatusPending,
			Config:      d.Attrs,
			BorderStyle: d.Attrs["border"],
			Level:       len(d.Units),
		}
		if err := repo.CreateCard(ctx, card); err != nil {
			return fmt.Errorf("failed to create card for %s: %w", d.StudentNo, err)
		}

		imageURL := fmt.Sprintf("/api/images/students/%s/cards/card_%s.png", student.ID, card.ID)
		thumbURL := fmt.Sprintf("/api/images/students/%s/cards/card_%s_thumb.png", student.ID, card.ID)
		applied, err := repo.CompleteCard(ctx, card.ID, imageURL, thumbURL, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to complete card for %s: %w", d.StudentNo, err)
		}
		if !applied {
			return fmt.Errorf("card %s was unexpectedly terminal", card.ID)
		}
		logger.Info("Seeded card %s for %s", card.ID, d.StudentNo)
	}
	logger.Info("Card seeding complete!")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Repository, func(), error) {
	switch cfg.DB.Driver {
	case "sqlite", "":
		db, err := repository.OpenSQLite(cfg.DB.Path)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil

	case "postgres":
		connStr := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
		)
		pool, err := pgxpool.New(ctx, connStr)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewPostgresStore(pool)
		if err := store.InitSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() { pool.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported db driver %q", cfg.DB.Driver)
	}
}
