package dap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLoop_Order verifies posted functions run in order, including ones posted from the loop.
func TestLoop_Order(t *testing.T) {
	l := NewLoop()
	defer l.Stop()

	var got []int
	l.Call(func() {
		for i := 0; i < 3; i++ {
			i := i
			l.Post(func() {
				got = append(got, i)
				if i == 0 {
					l.Post(func() { got = append(got, 99) })
				}
			})
		}
	})
	assert.True(t, l.Call(func() {}))
	assert.Equal(t, []int{0, 1, 2, 99}, got)
}

// TestLoop_StoppedDropsWork verifies nothing runs after Stop.
func TestLoop_StoppedDropsWork(t *testing.T) {
	l := NewLoop()
	l.Stop()
	ran := false
	l.Post(func() { ran = true })
	assert.False(t, l.Call(func() { ran = true }))
	assert.False(t, ran)
}

// TestMessage_FailureReason verifies the fallback order of failure text.
func TestMessage_FailureReason(t *testing.T) {
	assert.Equal(t, "bad", (&Message{Message: "bad"}).FailureReason())
	assert.Equal(t, "detail", (&Message{Message: "bad", Body: []byte(`{"error":{"id":1,"format":"detail"}}`)}).FailureReason())
	assert.Equal(t, "unknown error", (&Message{}).FailureReason())
}
