package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cardscan/constants"
)

// RecognitionJob is one row of the recognition ledger.
type RecognitionJob struct {
	ID           uuid.UUID           `json:"id"`
	SourceKind   string              `json:"source_kind"`
	SourceRef    string              `json:"source_ref"`
	Status       constants.JobStatus `json:"status"`
	OperationURL *string             `json:"operation_url,omitempty"`
	Polls        int                 `json:"polls"`
	RegionCount  int                 `json:"region_count"`
	Regions      json.RawMessage     `json:"regions,omitempty"`
	ErrorCode    *string             `json:"error_code,omitempty"`
	GRPCCode     *string             `json:"grpc_code,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}

// Done reports whether the job reached a terminal status.
func (j *RecognitionJob) Done() bool {
	return j.Status == constants.JobStatusSucceeded || j.Status == constants.JobStatusFailed
}
