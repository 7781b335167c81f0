package breakpoints

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/emirpasic/gods/sets/linkedhashset"
	"github.com/google/go-dap"

	"github.com/ctagard/dapctl/internal/prompt"
)

// ExceptionBreakpoints is the negotiated set of exception filters, in the
// order they were chosen.
type ExceptionBreakpoints struct {
	filters *linkedhashset.Set
}

// NewExceptionBreakpoints returns a set holding filters.
func NewExceptionBreakpoints(filters ...string) *ExceptionBreakpoints {
	set := linkedhashset.New()
	for _, f := range filters {
		set.Add(f)
	}
	return &ExceptionBreakpoints{filters: set}
}

// Filters returns the chosen filter names.
func (e *ExceptionBreakpoints) Filters() []string {
	values := e.filters.Values()
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.(string))
	}
	return out
}

// Contains reports whether filter was chosen.
func (e *ExceptionBreakpoints) Contains(filter string) bool {
	return e.filters.Contains(filter)
}

// Len returns the number of chosen filters.
func (e *ExceptionBreakpoints) Len() int {
	return e.filters.Size()
}

// ExceptionFilters returns the negotiated filters, or nil when negotiation
// has not happened yet.
func (s *Store) ExceptionFilters() []string {
	if s.exceptions == nil {
		return nil
	}
	return s.exceptions.Filters()
}

// exceptionChoiceKey is the Choices key remembering the answer for filter.
func exceptionChoiceKey(filter string) string {
	return "exception:" + filter
}

// needsExceptions reports whether any registered connection expects a
// setExceptionBreakpoints request: it advertises filters, or it has no
// configurationDone request and relies on that request to finish
// configuration.
func (cs *connState) needsExceptions() bool {
	return len(cs.caps.ExceptionFilters()) > 0 ||
		!cs.caps.Supports("supportsConfigurationDoneRequest")
}

// advertisedFilters returns the union of the filters of every registered
// connection, first seen first.
func (s *Store) advertisedFilters() []dap.ExceptionBreakpointsFilter {
	seen := make(map[string]bool)
	var out []dap.ExceptionBreakpointsFilter
	for _, cs := range s.conns {
		for _, f := range cs.caps.ExceptionFilters() {
			if seen[f.Filter] {
				continue
			}
			seen[f.Filter] = true
			out = append(out, f)
		}
	}
	return out
}

// negotiateExceptions decides the exception filters. Configured answers win,
// then remembered choices, then the user is asked. Nothing is committed
// unless every filter was decided.
func (s *Store) negotiateExceptions() error {
	filters := s.advertisedFilters()
	chosen := NewExceptionBreakpoints()
	answers := make(map[string]string)

	for _, f := range filters {
		answer, err := s.exceptionAnswer(f)
		if err != nil {
			return err
		}
		answers[f.Filter] = answer
		switch answer {
		case "Y":
			chosen.filters.Add(f.Filter)
		case "":
			if f.Default {
				chosen.filters.Add(f.Filter)
			}
		}
	}

	for filter, answer := range answers {
		s.choices.Set(exceptionChoiceKey(filter), answer)
	}
	s.exceptions = chosen
	s.log.Debugf("exception filters negotiated: %v", chosen.Filters())
	return nil
}

func (s *Store) exceptionAnswer(f dap.ExceptionBreakpointsFilter) (string, error) {
	if v, ok := s.configured[f.Filter]; ok {
		return parseExceptionAnswer(f.Filter, v)
	}
	if v, ok := s.choices.Get(exceptionChoiceKey(f.Filter)); ok {
		return parseExceptionAnswer(f.Filter, v)
	}
	if s.prompter == nil {
		return "", nil
	}

	def := "N"
	if f.Default {
		def = "Y"
	}
	label := f.Label
	if label == "" {
		label = f.Filter
	}
	answer, err := s.prompter.Ask(fmt.Sprintf("%s: Break on %s (Y/N/default: %s)? ", f.Filter, label, def), "")
	if err != nil {
		return "", err
	}
	return parseExceptionAnswer(f.Filter, answer)
}

// parseExceptionAnswer accepts booleans or Y/N/empty (case-insensitive).
func parseExceptionAnswer(filter string, v interface{}) (string, error) {
	switch a := v.(type) {
	case bool:
		if a {
			return "Y", nil
		}
		return "N", nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(a)) {
		case "Y", "YES":
			return "Y", nil
		case "N", "NO":
			return "N", nil
		case "":
			return "", nil
		}
	}
	return "", fmt.Errorf("invalid value for exception breakpoint %s: %v", filter, v)
}

// isCancelled reports whether err is a cancelled prompt.
func isCancelled(err error) bool {
	return stderrors.Is(err, prompt.ErrCancelled)
}
