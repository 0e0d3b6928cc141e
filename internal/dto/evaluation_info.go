package dto

import (
	"encoding/json"
	"time"
)

// EvaluationInfo is one journal row as returned to the history page.
type EvaluationInfo struct {
	ID        string    `json:"id"`
	Camera    string    `json:"camera"`
	Label     string    `json:"label"`
	Scores    string    `json:"scores"`
	LatencyMs int64     `json:"latencyMs"`
	Date      time.Time `json:"date"`
	TimeOfDay time.Time `json:"timeOfDay"`
}

// MarshalJSON customizes JSON output for EvaluationInfo to format date and time-of-day.
func (e EvaluationInfo) MarshalJSON() ([]byte, error) {
	type Alias EvaluationInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      e.Date.Format("02-01-2006"),
		TimeOfDay: e.TimeOfDay.Format("15:04:05"),
		Alias:     (Alias)(e),
	})
}
