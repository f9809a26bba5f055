package constants

// JobStatus is the canonical status for rows in recognition_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued    JobStatus = "QUEUED"    // waiting for a worker
	JobStatusRunning   JobStatus = "RUNNING"   // submitted or polling
	JobStatusSucceeded JobStatus = "SUCCEEDED" // regions stored
	JobStatusFailed    JobStatus = "FAILED"    // terminal failure
)

// OperationStatus is the status vocabulary reported by the remote read operation.
type OperationStatus string

const (
	OperationNotStarted OperationStatus = "notStarted"
	OperationRunning    OperationStatus = "running"
	OperationSucceeded  OperationStatus = "succeeded"
	OperationFailed     OperationStatus = "failed"
)

// Known reports whether s belongs to the closed operation vocabulary.
func (s OperationStatus) Known() bool {
	switch s {
	case OperationNotStarted, OperationRunning, OperationSucceeded, OperationFailed:
		return true
	}
	return false
}
