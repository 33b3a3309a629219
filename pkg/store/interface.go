package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/fredEIR/pkg/models"
)

// ErrRunNotFound is returned when no projection run has the requested ID.
var ErrRunNotFound = errors.New("projection run not found")

// Storage defines the interface for persisting projection runs and their output records.
type Storage interface {
	CreateRun(run *models.ProjectionRun) error
	GetRun(id uuid.UUID) (*models.ProjectionRun, error)
	ListRuns() ([]*models.ProjectionRun, error) // summaries, without records
	DeleteRun(id uuid.UUID) error

	Close() error
}
