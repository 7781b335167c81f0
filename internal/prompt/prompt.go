// Package prompt implements the interactive surface of a debugging session:
// questions to the user, configuration pickers, confirmations and
// user-visible messages.
package prompt

import (
	"errors"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

// ErrCancelled is returned when the user abandons a prompt.
var ErrCancelled = errors.New("prompt cancelled")

// Prompter asks the user for input and shows them messages. Every method
// blocks the calling goroutine until answered.
type Prompter interface {
	// Ask returns the user's answer, or defaultValue if they accept it.
	Ask(question, defaultValue string) (string, error)

	// Select returns one of options.
	Select(title string, options []string) (string, error)

	// Confirm asks a yes/no question.
	Confirm(question string) (bool, error)

	// Message shows text to the user.
	Message(text string, isError bool)
}

// Interactive reports whether stdin and stdout are both terminals.
func Interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// Choices remembers answers the user has already given so that they are not
// asked again for the lifetime of the process. The zero value is not usable;
// use NewChoices.
type Choices struct {
	mu     sync.Mutex
	values map[string]string
}

// NewChoices returns a store pre-seeded with values.
func NewChoices(values map[string]string) *Choices {
	c := &Choices{values: make(map[string]string, len(values))}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

// Get returns the remembered answer for key.
func (c *Choices) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// Set remembers an answer.
func (c *Choices) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Update remembers every entry of values.
func (c *Choices) Update(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		c.values[k] = v
	}
}

// Snapshot returns a copy of all remembered answers.
func (c *Choices) Snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
