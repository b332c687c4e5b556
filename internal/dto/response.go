package dto

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"funnel requires at least 2 steps"`
}

// TrackResponse represents a successful ingestion response. ID is the event
// id for track payloads and the job id otherwise.
type TrackResponse struct {
	ID     string `json:"id" example:"01950000-0000-7000-8000-000000000001"`
	Status string `json:"status" example:"accepted"`
}

// TrackBulkResponse represents a bulk ingestion response
type TrackBulkResponse struct {
	Accepted int      `json:"accepted" example:"5"`
	Rejected int      `json:"rejected" example:"0"`
	IDs      []string `json:"ids,omitempty"`
	Errors   []string `json:"errors,omitempty" example:"event 3: missing required field: name"`
}
