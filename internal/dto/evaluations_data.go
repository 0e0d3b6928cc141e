// EvaluationsData is a paginated response payload for the history page.
package dto

type EvaluationsData struct {
	Evaluations []EvaluationInfo `json:"evaluations"`
	Length      int              `json:"length"`
	TotalPages  int              `json:"totalPages"`
	CurrentPage int              `json:"currentPage"`
	Limit       int              `json:"pageSize"`
}
