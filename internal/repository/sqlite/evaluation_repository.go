package sqlite

import (
	"fmt"

	"visionapp/internal/dto"
	"visionapp/internal/model"
)

// EvaluationRepository implements repository.EvaluationRepository for SQLite.
type EvaluationRepository struct {
	db *DB
}

// NewEvaluationRepository creates a new SQLite evaluation repository.
func NewEvaluationRepository(db *DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

const insertEvaluation = `
	INSERT INTO evaluations (id, camera, label, scores, latency_ms, timestamp)
	VALUES (?, ?, ?, ?, ?, ?)
`

// InsertBatch adds multiple evaluations in a single transaction.
func (r *EvaluationRepository) InsertBatch(evaluations []model.Evaluation) error {
	if len(evaluations) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertEvaluation)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range evaluations {
		if _, err := stmt.Exec(e.ID, e.Camera, e.Label, e.Scores, e.LatencyMs, e.Timestamp); err != nil {
			return fmt.Errorf("failed to insert evaluation: %w", err)
		}
	}

	return tx.Commit()
}

// whereClause builds the shared filter part of list and count queries.
func whereClause(filter *dto.EvaluationFilters) (string, []interface{}) {
	query := " WHERE 1=1"
	args := []interface{}{}

	if filter == nil {
		return query, args
	}

	if filter.Camera != "" {
		query += " AND camera = ?"
		args = append(args, filter.Camera)
	}

	if filter.Label != "" {
		query += " AND label = ?"
		args = append(args, filter.Label)
	}

	if !filter.DateAfter.IsZero() {
		query += " AND DATE(timestamp) >= DATE(?)"
		args = append(args, filter.DateAfter)
	}

	if !filter.DateBefore.IsZero() {
		query += " AND DATE(timestamp) <= DATE(?)"
		args = append(args, filter.DateBefore)
	}

	return query, args
}

// GetAll retrieves evaluations matching the filter, newest first.
func (r *EvaluationRepository) GetAll(filter *dto.EvaluationFilters) ([]model.Evaluation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)
	query := `SELECT id, camera, label, scores, latency_ms, timestamp FROM evaluations` +
		where + " ORDER BY timestamp DESC"

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	var evaluations []model.Evaluation
	for rows.Next() {
		var e model.Evaluation
		if err := rows.Scan(&e.ID, &e.Camera, &e.Label, &e.Scores, &e.LatencyMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		evaluations = append(evaluations, e)
	}

	return evaluations, rows.Err()
}

// GetTotalCount returns the number of evaluations matching the filter.
func (r *EvaluationRepository) GetTotalCount(filter *dto.EvaluationFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM evaluations`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count evaluations: %w", err)
	}
	return count, nil
}

// GetLabelCounts returns how often each top label was shown.
func (r *EvaluationRepository) GetLabelCounts() (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT label, COUNT(*) FROM evaluations GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("failed to query label counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan label count: %w", err)
		}
		counts[label] = count
	}
	return counts, rows.Err()
}

// DeleteAll removes every evaluation.
func (r *EvaluationRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM evaluations`); err != nil {
		return fmt.Errorf("failed to delete evaluations: %w", err)
	}
	return nil
}
