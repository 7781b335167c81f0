package prompt

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/dapctl/internal/logflags"
)

// Cancel is a scripted answer that cancels the prompt it is consumed by.
const Cancel = "\x00cancel"

// Message is a user-visible message recorded by a Scripted prompter.
type Message struct {
	Text    string `json:"text"`
	IsError bool   `json:"isError,omitempty"`
}

// Scripted answers prompts from a queue. It serves non-interactive callers
// (the MCP server) and tests. When the queue is empty, Ask falls back to
// the default if UseDefaults is set and the default is non-empty, Confirm
// returns ConfirmDefault, and everything else is cancelled.
type Scripted struct {
	UseDefaults    bool
	ConfirmDefault bool

	mu        sync.Mutex
	answers   []string
	questions []string
	messages  []Message
	log       *logrus.Entry
}

// NewScripted returns a prompter that answers with answers, in order.
func NewScripted(answers ...string) *Scripted {
	return &Scripted{
		answers: answers,
		log:     logflags.SessionLogger(),
	}
}

// Push queues more answers.
func (s *Scripted) Push(answers ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, answers...)
}

func (s *Scripted) next(question string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, question)
	if len(s.answers) == 0 {
		return "", false
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, true
}

// Ask implements Prompter.
func (s *Scripted) Ask(question, defaultValue string) (string, error) {
	a, ok := s.next(question)
	switch {
	case ok && a == Cancel:
		return "", ErrCancelled
	case ok:
		return a, nil
	case s.UseDefaults && defaultValue != "":
		return defaultValue, nil
	}
	return "", ErrCancelled
}

// Select implements Prompter. The answer may be an option or its 1-based index.
func (s *Scripted) Select(title string, options []string) (string, error) {
	a, ok := s.next(title)
	if !ok || a == Cancel {
		return "", ErrCancelled
	}
	for i, o := range options {
		if a == o || a == fmt.Sprint(i+1) {
			return o, nil
		}
	}
	return "", ErrCancelled
}

// Confirm implements Prompter. Answers "y" and "yes" confirm.
func (s *Scripted) Confirm(question string) (bool, error) {
	a, ok := s.next(question)
	if !ok {
		return s.ConfirmDefault, nil
	}
	if a == Cancel {
		return false, ErrCancelled
	}
	return a == "y" || a == "yes", nil
}

// Message implements Prompter.
func (s *Scripted) Message(text string, isError bool) {
	s.mu.Lock()
	s.messages = append(s.messages, Message{Text: text, IsError: isError})
	s.mu.Unlock()
	if isError {
		s.log.Warn(text)
	} else {
		s.log.Info(text)
	}
}

// Questions returns every prompt shown so far.
func (s *Scripted) Questions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.questions...)
}

// Messages returns every message shown so far.
func (s *Scripted) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// DrainMessages returns and forgets the messages shown so far.
func (s *Scripted) DrainMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.messages
	s.messages = nil
	return out
}
