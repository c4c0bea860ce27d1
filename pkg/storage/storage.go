// Package storage caches fetched workflow runs between invocations.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
)

// RunKey identifies one attempt of a workflow run. Re-running a run keeps
// its ID and increments the attempt.
type RunKey struct {
	ID      string
	Attempt int
}

// KeyOf returns the key run is stored under.
func KeyOf(run *buildtrace.WorkflowRun) RunKey {
	return RunKey{ID: run.ID, Attempt: run.Attempt}
}

// String returns "<id>:<attempt>".
func (k RunKey) String() string {
	return fmt.Sprintf("%s:%d", k.ID, k.Attempt)
}

// RunCache stores workflow runs by ID and attempt.
type RunCache interface {
	GetRun(ctx context.Context, key RunKey) (*buildtrace.WorkflowRun, error)
	SaveRun(ctx context.Context, run *buildtrace.WorkflowRun) error
	DeleteRun(ctx context.Context, key RunKey) error

	// Lifecycle
	Close() error
}

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// EntityRun is the entity type reported in run errors.
const EntityRun = "run"

// RunNotFound returns the not-found error for key.
func RunNotFound(key RunKey) error {
	return &NotFoundError{EntityType: EntityRun, ID: key.String()}
}

// Serialize encodes v for storage.
func Serialize(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &SerializationError{
			Operation: "marshal",
			Cause:     err,
		}
	}
	return data, nil
}

// Deserialize decodes data produced by Serialize into v.
func Deserialize(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &SerializationError{
			Operation: "unmarshal",
			Cause:     err,
		}
	}
	return nil
}

// ValidateRun rejects runs that cannot be keyed.
func ValidateRun(run *buildtrace.WorkflowRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	return nil
}
