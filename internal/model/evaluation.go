package model

import "time"

// Evaluation is one journal row written after a frame was classified.
type Evaluation struct {
	ID        string    `json:"id"`
	Camera    string    `json:"camera"`
	Label     string    `json:"label"`
	Scores    string    `json:"scores"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}
