package repository

import (
	"visionapp/internal/dto"
	"visionapp/internal/model"
)

// EvaluationRepository defines the interface for evaluation journal operations.
type EvaluationRepository interface {
	// Create operations
	InsertBatch(evaluations []model.Evaluation) error

	// Read operations
	GetAll(filter *dto.EvaluationFilters) ([]model.Evaluation, error)
	GetTotalCount(filter *dto.EvaluationFilters) (int, error)
	GetLabelCounts() (map[string]int, error)

	// Delete operations
	DeleteAll() error
}
