package handler

import (
	"encoding/json"
	"net/http"
	"visionapp/internal/dto"
	"visionapp/internal/logger"
)

// Pipeline reports frame counters.
type Pipeline interface {
	Stats() dto.PipelineStats
}

// DisplayState returns what viewers currently see.
type DisplayState interface {
	Snapshot() dto.DisplayState
}

// ViewerCounter reports how many viewers are connected.
type ViewerCounter interface {
	GetClientCount() int
}

// StatusHandler returns the display state together with pipeline counters.
func StatusHandler(pipeline Pipeline, display DisplayState, viewers ViewerCounter, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		response := dto.StatusResponse{
			Display: display.Snapshot(),
			Stats:   pipeline.Stats(),
			Viewers: viewers.GetClientCount(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("Error encoding status response: %v", err)
		}
	}
}
