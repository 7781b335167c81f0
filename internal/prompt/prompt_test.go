package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScripted_Ask verifies queued answers, defaults and cancellation.
func TestScripted_Ask(t *testing.T) {
	p := NewScripted("first", Cancel)

	a, err := p.Ask("Q1? ", "d")
	require.NoError(t, err)
	assert.Equal(t, "first", a)

	_, err = p.Ask("Q2? ", "d")
	assert.ErrorIs(t, err, ErrCancelled)

	_, err = p.Ask("Q3? ", "d")
	assert.ErrorIs(t, err, ErrCancelled)

	p.UseDefaults = true
	a, err = p.Ask("Q4? ", "d")
	require.NoError(t, err)
	assert.Equal(t, "d", a)

	_, err = p.Ask("Q5? ", "")
	assert.ErrorIs(t, err, ErrCancelled)

	assert.Equal(t, []string{"Q1? ", "Q2? ", "Q3? ", "Q4? ", "Q5? "}, p.Questions())
}

// TestScripted_Select verifies selection by name or index.
func TestScripted_Select(t *testing.T) {
	p := NewScripted("2", "beta", "zeta")
	options := []string{"alpha", "beta"}

	v, err := p.Select("pick", options)
	require.NoError(t, err)
	assert.Equal(t, "beta", v)

	v, err = p.Select("pick", options)
	require.NoError(t, err)
	assert.Equal(t, "beta", v)

	_, err = p.Select("pick", options)
	assert.ErrorIs(t, err, ErrCancelled)
}

// TestScripted_Confirm verifies yes/no answers and the default.
func TestScripted_Confirm(t *testing.T) {
	p := NewScripted("y", "n")
	p.ConfirmDefault = true

	ok, _ := p.Confirm("?")
	assert.True(t, ok)
	ok, _ = p.Confirm("?")
	assert.False(t, ok)
	ok, _ = p.Confirm("?")
	assert.True(t, ok)
}

// TestScripted_Messages verifies messages are recorded and drained.
func TestScripted_Messages(t *testing.T) {
	p := NewScripted()
	p.Message("hello", false)
	p.Message("oops", true)
	assert.Len(t, p.Messages(), 2)
	assert.Equal(t, []Message{{Text: "hello"}, {Text: "oops", IsError: true}}, p.DrainMessages())
	assert.Empty(t, p.Messages())
}

// TestChoices verifies the store is seeded and copied defensively.
func TestChoices(t *testing.T) {
	seed := map[string]string{"port": "1234"}
	c := NewChoices(seed)
	seed["port"] = "9"

	v, ok := c.Get("port")
	assert.True(t, ok)
	assert.Equal(t, "1234", v)

	c.Update(map[string]string{"host": "localhost"})
	snap := c.Snapshot()
	snap["host"] = "x"
	v, _ = c.Get("host")
	assert.Equal(t, "localhost", v)
}

// TestCompletionTrie verifies prefix completion over option names.
func TestCompletionTrie(t *testing.T) {
	tr := newCompletionTrie([]string{"Launch", "Launch tests", "Attach"})
	assert.Equal(t, []string{"Launch", "Launch tests"}, tr.complete("La"))
	assert.Equal(t, []string{"Attach"}, tr.complete("A"))
	assert.Empty(t, tr.complete("X"))
}
