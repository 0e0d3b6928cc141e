package storage

import (
	"context"
	"sync"
	"time"
	"visionapp/internal/config"
	"visionapp/internal/logger"
	"visionapp/internal/model"
	"visionapp/internal/repository"
)

// BufferService keeps completed evaluations in memory and periodically
// flushes them to the journal repository.
type BufferService struct {
	records       []model.Evaluation
	limit         int
	flushInterval time.Duration
	mu            sync.Mutex
	logger        *logger.Logger
	repo          repository.EvaluationRepository
}

// NewBufferService creates a new BufferService writing to repo.
func NewBufferService(config *config.Config, logger *logger.Logger, repo repository.EvaluationRepository) *BufferService {
	return &BufferService{
		records:       make([]model.Evaluation, 0, config.JournalBufferLimit),
		limit:         config.JournalBufferLimit,
		flushInterval: time.Duration(config.JournalFlushInterval) * time.Second,
		logger:        logger,
		repo:          repo,
	}
}

// Run flushes on every tick until ctx is cancelled.
func (s *BufferService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Journal flusher stopped")
			return
		case <-ticker.C:
			s.FlushRecords()
		}
	}
}

// Add appends one evaluation. Records arriving while the buffer is full are
// skipped; the journal never slows the pipeline down.
func (s *BufferService) Add(record model.Evaluation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) >= s.limit {
		s.logger.Warning("Journal buffer full (%d/%d), skipping evaluation %s", len(s.records), s.limit, record.ID)
		return
	}
	s.records = append(s.records, record)
}

// Len returns the number of buffered records.
func (s *BufferService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// FlushRecords writes buffered evaluations in one batch and clears the buffer.
// On failure the records are kept for the next tick.
func (s *BufferService) FlushRecords() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return
	}

	if err := s.repo.InsertBatch(s.records); err != nil {
		s.logger.Error("Error saving evaluations to database: %v", err)
		return
	}

	s.logger.Info("Flushed %d evaluations to journal", len(s.records))
	s.records = s.records[:0]
}
