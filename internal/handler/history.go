package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
	"visionapp/internal/dto"
	"visionapp/internal/logger"
	"visionapp/internal/repository"
)

// Flusher writes buffered evaluations to the journal.
type Flusher interface {
	FlushRecords()
}

// GetHistoryHandler returns one page of the evaluation journal.
func GetHistoryHandler(repo repository.EvaluationRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &dto.EvaluationFilters{
			Camera:     q.Get("camera"),
			Label:      q.Get("label"),
			DateAfter:  parseDate(q.Get("dateAfter")),
			DateBefore: parseDate(q.Get("dateBefore")),
		}

		totalCount, err := repo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting evaluations: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		filter.Limit = limit
		filter.Offset = (page - 1) * limit

		evaluations, err := repo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying evaluations from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		rows := make([]dto.EvaluationInfo, 0, len(evaluations))
		for _, e := range evaluations {
			rows = append(rows, dto.EvaluationInfo{
				ID:        e.ID,
				Camera:    e.Camera,
				Label:     e.Label,
				Scores:    e.Scores,
				LatencyMs: e.LatencyMs,
				Date:      e.Timestamp,
				TimeOfDay: e.Timestamp,
			})
		}

		data := dto.EvaluationsData{
			Evaluations: rows,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// HistoryStatsHandler returns how often each label was the top class.
func HistoryStatsHandler(repo repository.EvaluationRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := repo.GetLabelCounts()
		if err != nil {
			logger.Error("Error counting labels: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(counts); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// ClearHistoryHandler flushes pending rows and then empties the journal, so
// nothing buffered before the request reappears afterwards.
func ClearHistoryHandler(buffer Flusher, repo repository.EvaluationRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if buffer != nil {
			buffer.FlushRecords()
		}
		if err := repo.DeleteAll(); err != nil {
			logger.Error("Error clearing journal: %v", err)
			http.Error(w, "Unable to clear history", http.StatusInternalServerError)
			return
		}

		logger.Info("Evaluation journal cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}
