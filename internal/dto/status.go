package dto

// PipelineStats counts what happened to arriving frames.
type PipelineStats struct {
	Admitted    int64  `json:"admitted"`
	Dropped     int64  `json:"dropped"`
	Evaluated   int64  `json:"evaluated"`
	Failed      int64  `json:"failed"`
	ModelLoaded bool   `json:"modelLoaded"`
	Previewing  bool   `json:"previewing"`
	Source      string `json:"source"`
}

// StatusResponse is returned by /api/status.
type StatusResponse struct {
	Display DisplayState  `json:"display"`
	Stats   PipelineStats `json:"stats"`
	Viewers int           `json:"viewers"`
}
