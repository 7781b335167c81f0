package prompt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
)

// Terminal prompts on the controlling terminal through liner.
type Terminal struct {
	mu   sync.Mutex
	line *liner.State
	out  io.Writer
}

// NewTerminal takes over the terminal. Close must be called to restore it.
func NewTerminal() *Terminal {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &Terminal{line: line, out: os.Stdout}
}

// Close restores the terminal.
func (t *Terminal) Close() error {
	return t.line.Close()
}

// Prompt reads one command line. Used by the REPL.
func (t *Terminal) Prompt(prefix string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, err := t.line.Prompt(prefix)
	if err != nil {
		return "", cancelled(err)
	}
	if strings.TrimSpace(l) != "" {
		t.line.AppendHistory(l)
	}
	return l, nil
}

// SetCompleter installs tab completion for Prompt.
func (t *Terminal) SetCompleter(words []string) {
	tr := newCompletionTrie(words)
	t.line.SetCompleter(func(line string) []string {
		return tr.complete(line)
	})
}

// Ask implements Prompter.
func (t *Terminal) Ask(question, defaultValue string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	answer, err := t.line.PromptWithSuggestion(question, defaultValue, -1)
	if err != nil {
		return "", cancelled(err)
	}
	return answer, nil
}

// Select implements Prompter. The user may type an option, a unique prefix
// of one, or its number; tab completes option names.
func (t *Terminal) Select(title string, options []string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintln(t.out, title)
	for i, o := range options {
		fmt.Fprintf(t.out, "  %d: %s\n", i+1, o)
	}

	tr := newCompletionTrie(options)
	t.line.SetCompleter(tr.complete)
	defer t.line.SetCompleter(nil)

	for {
		answer, err := t.line.Prompt("Type number or name: ")
		if err != nil {
			return "", cancelled(err)
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return "", ErrCancelled
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
			return options[n-1], nil
		}
		if matches := tr.complete(answer); len(matches) == 1 {
			return matches[0], nil
		}
		fmt.Fprintf(t.out, "%q does not select a single option\n", answer)
	}
}

// Confirm implements Prompter.
func (t *Terminal) Confirm(question string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		answer, err := t.line.Prompt(question)
		if err != nil {
			return false, cancelled(err)
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "n", "no":
			return false, nil
		case "y", "yes":
			return true, nil
		}
	}
}

// Message implements Prompter.
func (t *Terminal) Message(text string, isError bool) {
	if isError {
		fmt.Fprintf(t.out, "error: %s\n", text)
		return
	}
	fmt.Fprintln(t.out, text)
}

func cancelled(err error) error {
	if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
		return ErrCancelled
	}
	return err
}

type completionTrie struct {
	t *trie.Trie
}

func newCompletionTrie(words []string) completionTrie {
	t := trie.New()
	for _, w := range words {
		t.Add(w, nil)
	}
	return completionTrie{t: t}
}

func (c completionTrie) complete(prefix string) []string {
	matches := c.t.PrefixSearch(prefix)
	sort.Strings(matches)
	return matches
}
