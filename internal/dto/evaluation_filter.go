// EvaluationFilters describe user-provided filters to narrow the journal.
package dto

import "time"

type EvaluationFilters struct {
	Camera     string
	Label      string
	DateAfter  time.Time
	DateBefore time.Time
	Limit      int
	Offset     int
}
