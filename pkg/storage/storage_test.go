package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	err := RunNotFound(RunKey{ID: "7", Attempt: 2})
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsNotFound(errors.New("other")))
	assert.Equal(t, "run not found: 7:2", err.Error())

	cause := errors.New("connection refused")
	assert.ErrorIs(t, &StorageUnavailableError{Cause: cause}, cause)
	assert.ErrorIs(t, &SerializationError{Operation: "marshal", Cause: cause}, cause)
}

func TestKeyOf(t *testing.T) {
	run := SampleRun("42")
	run.Attempt = 3
	assert.Equal(t, RunKey{ID: "42", Attempt: 3}, KeyOf(run))
	assert.Equal(t, "42:3", KeyOf(run).String())
}

func TestSerializeRoundTrip(t *testing.T) {
	data, err := Serialize(SampleRun("1"))
	assert.NoError(t, err)

	var out struct {
		ID string `json:"id"`
	}
	assert.NoError(t, Deserialize(data, &out))
	assert.Equal(t, "1", out.ID)

	_, err = Serialize(make(chan int))
	var serr *SerializationError
	assert.ErrorAs(t, err, &serr)
	assert.Equal(t, "marshal", serr.Operation)
}
