package scheduler

import "errors"

var (
	// ErrSerialization marks a resource that could not be rendered as a manifest
	ErrSerialization = errors.New("serialization failed")

	// ErrNoSchedulableNode is returned when the snapshot has no nodes
	ErrNoSchedulableNode = errors.New("failed to find schedulable node")

	// ErrDispatch marks a failed apply on the target node
	ErrDispatch = errors.New("dispatch failed")

	// ErrNoChannel is returned when the fleet has no connection for the target node
	ErrNoChannel = errors.New("no connection for node")

	// ErrUnknownKind is returned by a batch containing a resource kind the
	// scheduler cannot handle
	ErrUnknownKind = errors.New("unknown resource kind")
)

// StageError is a per-resource failure at one stage of scheduling.
// Its message is the cause's message, unchanged.
type StageError struct {
	Stage error
	Err   error
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() []error {
	return []error{e.Stage, e.Err}
}
