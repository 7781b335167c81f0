package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestDebugError_Format verifies the message and hint are joined.
func TestDebugError_Format(t *testing.T) {
	err := UnresolvedAdapter("go", "circular extends chain")
	assert.Equal(t, CodeUnresolvedAdapter, err.Code)
	assert.Contains(t, err.Error(), "cannot resolve adapter 'go': circular extends chain")
	assert.Contains(t, err.Error(), " | Hint: ")
}

// TestDebugError_Unwrap verifies the cause is reachable through the standard helpers.
func TestDebugError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("exec: \"dlv\": executable file not found")
	err := AdapterLaunchFailed("delve", cause)
	assert.True(t, stderrors.Is(err, cause))

	wrapped := fmt.Errorf("start: %w", err)
	assert.True(t, HasCode(wrapped, CodeAdapterLaunchFailed))
	assert.False(t, HasCode(wrapped, CodeNoConfiguration))
	assert.True(t, stderrors.Is(wrapped, AdapterLaunchFailed("other", nil)))
}

// TestStartCancelled_Missing verifies missing names are listed.
func TestStartCancelled_Missing(t *testing.T) {
	err := StartCancelled([]string{"program", "port"})
	assert.Contains(t, err.Message, "program, port")
	assert.Equal(t, []string{"program", "port"}, err.Details["missing"])

	bare := StartCancelled(nil)
	assert.Equal(t, "debug session start cancelled", bare.Message)
	assert.Nil(t, bare.Details)
}

// TestRequestTimeout_Details verifies the timeout is rendered in details.
func TestRequestTimeout_Details(t *testing.T) {
	err := RequestTimeout("disconnect", 5*time.Second)
	assert.Equal(t, "5s", err.Details["timeout"])
}

// TestFromError verifies plain errors are wrapped and DebugErrors pass through.
func TestFromError(t *testing.T) {
	de := NoThreads()
	assert.Same(t, de, FromError(fmt.Errorf("ctx: %w", de)))

	plain := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrorCode("UNKNOWN_ERROR"), plain.Code)
	assert.Equal(t, "boom", plain.Message)
}
