package launchconfig

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cosiner/argv"
	"github.com/sirupsen/logrus"

	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/internal/logflags"
	"github.com/ctagard/dapctl/internal/prompt"
)

// variablePattern matches $$, $name, ${name}, ${env:NAME} and
// ${name:default}. Anything else after a $ is invalid.
var variablePattern = regexp.MustCompile(`(?i)\$(?:(\$)|([_a-z][_a-z0-9]*)|\{env:([^}]+)\}|\{([_a-z][_a-z0-9]*)\}|\{([_a-z][_a-z0-9]*):((?:\\\}|[^}])*)\}|())`)

const (
	groupEscaped = iota + 1
	groupNamed
	groupEnv
	groupBraced
	groupDefName
	groupDefault
	groupInvalid
)

// Calculus computes a variable on first use.
type Calculus map[string]func() (string, error)

// Expander replaces variable references in configuration values. Unknown
// variables are computed from Calculus, taken from remembered Choices, or
// asked for; every answer is remembered.
type Expander struct {
	Mapping  map[string]string
	Calculus Calculus
	Choices  *prompt.Choices
	Prompter prompt.Prompter

	// CollectMissing keeps going after a cancelled prompt so that every
	// unresolved name is reported at once.
	CollectMissing bool

	missing []string
	log     *logrus.Entry
}

// NewExpander returns an expander over a copy of mapping.
func NewExpander(mapping map[string]string, calculus Calculus, choices *prompt.Choices, p prompt.Prompter) *Expander {
	m := make(map[string]string, len(mapping))
	for k, v := range mapping {
		m[k] = v
	}
	if choices == nil {
		choices = prompt.NewChoices(nil)
	}
	return &Expander{
		Mapping:  m,
		Calculus: calculus,
		Choices:  choices,
		Prompter: p,
		log:      logflags.LaunchLogger(),
	}
}

// Missing returns the names the user declined to provide.
func (e *Expander) Missing() []string {
	return e.missing
}

// Err returns StartCancelled if any prompt was cancelled.
func (e *Expander) Err() error {
	if len(e.missing) > 0 {
		return errors.StartCancelled(e.missing)
	}
	return nil
}

type missingVariable struct {
	name       string
	def        string
	hasDefault bool
}

func (m *missingVariable) Error() string {
	return fmt.Sprintf("no value for %s", m.name)
}

func (e *Expander) substitute(template string) (string, error) {
	var firstErr error
	out := variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		if firstErr != nil {
			return match
		}
		sm := variablePattern.FindStringSubmatchIndex(match)
		group := func(n int) (string, bool) {
			if sm[2*n] < 0 {
				return "", false
			}
			return match[sm[2*n]:sm[2*n+1]], true
		}

		if _, ok := group(groupEscaped); ok {
			return "$"
		}
		if name, ok := group(groupEnv); ok {
			return os.Getenv(name)
		}
		for _, g := range []int{groupNamed, groupBraced} {
			if name, ok := group(g); ok {
				v, found := e.Mapping[name]
				if !found {
					firstErr = &missingVariable{name: name}
					return match
				}
				return v
			}
		}
		if name, ok := group(groupDefName); ok {
			v, found := e.Mapping[name]
			if !found {
				def, _ := group(groupDefault)
				firstErr = &missingVariable{name: name, def: strings.ReplaceAll(def, `\}`, `}`), hasDefault: true}
				return match
			}
			return v
		}
		firstErr = errors.InvalidVariable(template, "invalid placeholder")
		return match
	})
	return out, firstErr
}

// ExpandString resolves every reference in s.
func (e *Expander) ExpandString(s string) (string, error) {
	if strings.HasPrefix(s, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			s = home + s[1:]
		}
	}

	for attempt := 0; attempt < 100; attempt++ {
		out, err := e.substitute(s)
		if err == nil {
			return out, nil
		}
		var mv *missingVariable
		if !stderrors.As(err, &mv) {
			return s, err
		}
		if err := e.resolve(mv); err != nil {
			return s, err
		}
	}
	return s, errors.InvalidVariable(s, "too many nested references")
}

// resolve finds a value for a missing variable and stores it in Mapping.
func (e *Expander) resolve(mv *missingVariable) error {
	if calc, ok := e.Calculus[mv.name]; ok {
		v, err := calc()
		if err != nil {
			return errors.InvalidVariable(mv.name, err.Error())
		}
		e.Mapping[mv.name] = v
		return nil
	}

	def, remembered := e.Choices.Get(mv.name)
	if !remembered && mv.hasDefault {
		// one level of substitution in the default: ${program:${file\}}
		if expanded, err := e.substitute(mv.def); err == nil {
			def = expanded
		} else {
			def = mv.def
		}
	}

	if e.Prompter == nil {
		return e.cancelled(mv.name)
	}
	answer, err := e.Prompter.Ask(fmt.Sprintf("Enter value for %s: ", mv.name), def)
	if err != nil {
		if stderrors.Is(err, prompt.ErrCancelled) {
			return e.cancelled(mv.name)
		}
		return err
	}
	e.Mapping[mv.name] = answer
	e.Choices.Set(mv.name, answer)
	e.log.Debugf("value for %s set to %q", mv.name, answer)
	return nil
}

func (e *Expander) cancelled(name string) error {
	e.missing = append(e.missing, name)
	if !e.CollectMissing {
		return errors.StartCancelled(e.missing)
	}
	e.Mapping[name] = ""
	return nil
}

// ExpandObject expands strings anywhere inside v. In lists, an element of
// the form "*${name}" is replaced by the shell-style split of its value.
func (e *Expander) ExpandObject(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, e.ExpandDict(t)
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && len(s) > 2 && strings.HasPrefix(s, "*$") {
				value, err := e.ExpandString(s[1:])
				if err != nil {
					return nil, err
				}
				if strings.TrimSpace(value) == "" {
					continue
				}
				words, err := SplitWords(value)
				if err != nil {
					return nil, errors.InvalidVariable(s, err.Error())
				}
				for _, w := range words {
					out = append(out, w)
				}
				continue
			}
			expanded, err := e.ExpandObject(item)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded)
		}
		return out, nil
	case string:
		return e.ExpandString(t)
	}
	return v, nil
}

// ExpandDict expands obj in place, then applies "#json" and "#s" key
// suffixes: "port#json": "${port}" becomes the number "port".
func (e *Expander) ExpandDict(obj map[string]interface{}) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	for _, k := range keys {
		v, err := e.ExpandObject(obj[k])
		if err != nil {
			return err
		}
		obj[k] = v
		if err := coerceType(obj, k); err != nil {
			return err
		}
	}
	return nil
}

func coerceType(obj map[string]interface{}, key string) error {
	i := strings.LastIndex(key, "#")
	if i < 0 {
		return nil
	}
	base, kind := key[:i], key[i+1:]
	switch kind {
	case "json":
		s, ok := obj[key].(string)
		if !ok {
			return errors.InvalidVariable(key, "#json value must be a string")
		}
		var v interface{}
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return errors.InvalidVariable(key, err.Error())
		}
		delete(obj, key)
		obj[base] = v
	case "s":
		v := obj[key]
		delete(obj, key)
		obj[base] = fmt.Sprint(v)
	}
	return nil
}

// ParseVariables evaluates a "variables" block (an object, or a list of
// objects evaluated in order) against the expander's mapping. A value may be
// {"shell": cmd, "cwd": dir, "env": {...}}: the command's trimmed output
// becomes the value. The new variables are returned, not stored.
func (e *Expander) ParseVariables(block interface{}) (map[string]string, error) {
	var blocks []map[string]interface{}
	switch t := block.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]interface{}:
		blocks = append(blocks, t)
	case []interface{}:
		for _, b := range t {
			m, ok := b.(map[string]interface{})
			if !ok {
				return nil, errors.InvalidVariable("variables", "each entry must be an object")
			}
			blocks = append(blocks, m)
		}
	default:
		return nil, errors.InvalidVariable("variables", "must be an object or a list of objects")
	}

	result := make(map[string]string)
	saved := e.Mapping
	defer func() { e.Mapping = saved }()

	for _, vars := range blocks {
		// later blocks see the results of earlier ones
		scoped := make(map[string]string, len(saved)+len(result))
		for k, v := range saved {
			scoped[k] = v
		}
		for k, v := range result {
			scoped[k] = v
		}
		e.Mapping = scoped

		for name, raw := range vars {
			value, err := e.variableValue(name, raw)
			if err != nil {
				return nil, err
			}
			key := name
			if i := strings.LastIndex(name, "#"); i >= 0 {
				if kind := name[i+1:]; kind == "json" || kind == "s" {
					key = name[:i]
				}
			}
			result[key] = value
		}

		// keep prompted answers, but not the block's own results
		for k, v := range scoped {
			if _, own := result[k]; !own {
				saved[k] = v
			}
		}
	}
	return result, nil
}

func (e *Expander) variableValue(name string, raw interface{}) (string, error) {
	def, ok := raw.(map[string]interface{})
	if !ok {
		v, err := e.ExpandObject(raw)
		if err != nil {
			return "", err
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return "", errors.InvalidVariable(name, err.Error())
		}
		return string(data), nil
	}
	if _, ok := def["shell"]; !ok {
		return "", errors.InvalidVariable(name, "unsupported variable definition: missing 'shell'")
	}
	def = DeepCopy(def)
	if err := e.ExpandDict(def); err != nil {
		return "", err
	}
	return runShell(name, def)
}

func runShell(name string, def map[string]interface{}) (string, error) {
	var cmdline []string
	switch c := def["shell"].(type) {
	case string:
		words, err := SplitWords(c)
		if err != nil {
			return "", errors.InvalidVariable(name, err.Error())
		}
		cmdline = words
	case []interface{}:
		for _, w := range c {
			cmdline = append(cmdline, fmt.Sprint(w))
		}
	}
	if len(cmdline) == 0 {
		return "", errors.InvalidVariable(name, "empty shell command")
	}

	cmd := exec.Command(cmdline[0], cmdline[1:]...)
	if cwd, ok := def["cwd"].(string); ok && cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Env = os.Environ()
	if env, ok := def["env"].(map[string]interface{}); ok {
		for k, v := range env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%v", k, v))
		}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.InvalidVariable(name,
			fmt.Sprintf("command %q failed: %v (stderr: %s)", strings.Join(cmdline, " "), err, strings.TrimSpace(stderr.String())))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// SplitWords splits s the way a shell would, without running anything.
func SplitWords(s string) ([]string, error) {
	sections, err := argv.Argv(s,
		func(cmd string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", cmd)
		},
		nil)
	if err != nil {
		return nil, err
	}
	var words []string
	for i, section := range sections {
		if i > 0 {
			words = append(words, "|")
		}
		words = append(words, section...)
	}
	return words, nil
}

// BaseVariables are the variables every start attempt defines up front.
func BaseVariables(workspaceRoot, gadgetDir, currentFile string) map[string]string {
	return map[string]string{
		"dollar":          "$",
		"workspaceRoot":   workspaceRoot,
		"workspaceFolder": workspaceRoot,
		"gadgetDir":       gadgetDir,
		"file":            currentFile,
	}
}

// StandardCalculus computes file-derived variables on demand.
func StandardCalculus(workspaceRoot, currentFile string) Calculus {
	base := filepath.Base(currentFile)
	if currentFile == "" {
		base = ""
	}
	return Calculus{
		"relativeFile": func() (string, error) {
			if currentFile == "" {
				return "", nil
			}
			return filepath.Rel(workspaceRoot, currentFile)
		},
		"fileBasename": func() (string, error) { return base, nil },
		"fileBasenameNoExtension": func() (string, error) {
			return strings.TrimSuffix(base, filepath.Ext(base)), nil
		},
		"fileDirname": func() (string, error) {
			if currentFile == "" {
				return "", nil
			}
			return filepath.Dir(currentFile), nil
		},
		"fileExtname": func() (string, error) { return filepath.Ext(base), nil },
		"workspaceFolderBasename": func() (string, error) {
			return filepath.Base(workspaceRoot), nil
		},
		"cwd":             os.Getwd,
		"userHome":        os.UserHomeDir,
		"pathSeparator":   func() (string, error) { return string(os.PathSeparator), nil },
		"unusedLocalPort": UnusedLocalPort,
	}
}

// UnusedLocalPort asks the OS for a free TCP port.
func UnusedLocalPort() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port), nil
}
