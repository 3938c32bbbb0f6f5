package types

// SchedulePhase is the outcome of scheduling one resource
type SchedulePhase string

const (
	PhaseScheduled SchedulePhase = "Scheduled"
	PhaseError     SchedulePhase = "Error"
)

// ScheduleStatus carries the phase and its detail or error text
type ScheduleStatus struct {
	Phase   SchedulePhase `json:"phase"`
	Message string        `json:"message"`
}

// Scheduled returns a successful status with the given detail
func Scheduled(detail string) ScheduleStatus {
	return ScheduleStatus{Phase: PhaseScheduled, Message: detail}
}

// ScheduleError returns a failed status with the given message
func ScheduleError(message string) ScheduleStatus {
	return ScheduleStatus{Phase: PhaseError, Message: message}
}

// IsScheduled reports whether the resource was dispatched successfully
func (s ScheduleStatus) IsScheduled() bool {
	return s.Phase == PhaseScheduled
}

// ScheduleResult is the terminal record for one resource in a batch.
// NodeName is empty when scheduling failed before a target node was chosen.
type ScheduleResult struct {
	Resource Resource
	NodeName string
	Status   ScheduleStatus

	// Err is the cause of an Error status, for errors.Is checks. It is not
	// part of the recorded result.
	Err error `json:"-"`
}
