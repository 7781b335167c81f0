package launchconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/internal/logflags"
)

const (
	// ProjectFileName is the per-project configuration file.
	ProjectFileName = ".dapctl.json"
	// GadgetFileName holds adapter definitions, in the gadget directory or a project.
	GadgetFileName = ".gadgets.json"
	// GadgetDirName is the directory of extra gadget files inside the gadget directory.
	GadgetDirName = "gadgets.d"
	// ConfigurationsDirName is the directory of shared configuration files inside the gadget directory.
	ConfigurationsDirName = "configurations"
)

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// CurrentFile anchors the upward search for project files. Empty means
	// the working directory.
	CurrentFile string

	// GadgetDir holds installed adapter definitions and shared
	// configurations. May be empty.
	GadgetDir string

	// ConfigFile, when set, replaces the upward search for ProjectFileName.
	ConfigFile string

	// Builtin adapters have the lowest precedence.
	Builtin map[string]Object
}

// Minify strips // and /* */ comments outside of JSON strings.
func Minify(data []byte) []byte {
	var out bytes.Buffer
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(data) {
			switch data[i+1] {
			case '/':
				for i < len(data) && data[i] != '\n' {
					i++
				}
				out.WriteByte('\n')
				continue
			case '*':
				i += 2
				for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
					i++
				}
				i++
				continue
			}
		}
		out.WriteByte(c)
	}
	return out.Bytes()
}

// LoadFile reads one configuration or gadget file.
func LoadFile(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigInvalid(path, err.Error()).WithCause(err)
	}
	var db Database
	if err := json.Unmarshal(Minify(data), &db); err != nil {
		return nil, errors.ConfigInvalid(path, err.Error()).WithCause(err)
	}
	return &db, nil
}

// FindUp searches for name in startDir and its parents and returns the
// first path found, or "".
func FindUp(startDir, name string) string {
	if startDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return ""
		}
		startDir = cwd
	}
	current, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(current); err == nil {
		current = resolved
	}

	for {
		candidate := filepath.Join(current, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

func sortedGlob(dir string) []string {
	if dir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

func searchDir(currentFile string) string {
	if currentFile == "" {
		return ""
	}
	return filepath.Dir(currentFile)
}

// GadgetFiles lists the adapter files to read, least specific first.
func GadgetFiles(opts LoadOptions) []string {
	var files []string
	if opts.GadgetDir != "" {
		files = append(files, filepath.Join(opts.GadgetDir, GadgetFileName))
		files = append(files, sortedGlob(filepath.Join(opts.GadgetDir, GadgetDirName))...)
	}
	if p := FindUp(searchDir(opts.CurrentFile), GadgetFileName); p != "" {
		files = append(files, p)
	}
	return files
}

// ConfigFiles lists the configuration files to read, least specific first.
func ConfigFiles(opts LoadOptions) []string {
	var files []string
	if opts.GadgetDir != "" {
		files = append(files, sortedGlob(filepath.Join(opts.GadgetDir, ConfigurationsDirName))...)
	}
	if opts.ConfigFile != "" {
		files = append(files, opts.ConfigFile)
	} else if p := FindUp(searchDir(opts.CurrentFile), ProjectFileName); p != "" {
		files = append(files, p)
	}
	return files
}

// Load reads built-in, gadget and configuration files. Later files override
// earlier ones name by name. Missing files are skipped; unreadable or
// malformed ones are errors.
func Load(opts LoadOptions) (*Project, error) {
	log := logflags.LaunchLogger()
	p := &Project{
		Adapters:       make(map[string]Object),
		Configurations: make(map[string]Object),
	}
	for name, a := range opts.Builtin {
		p.Adapters[name] = DeepCopy(a)
	}

	read := func(path string) (*Database, error) {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) && path != opts.ConfigFile {
				return nil, nil
			}
			return nil, errors.ConfigInvalid(path, err.Error()).WithCause(err)
		}
		log.Debugf("reading %s", path)
		return LoadFile(path)
	}

	for _, path := range GadgetFiles(opts) {
		db, err := read(path)
		if err != nil {
			return nil, err
		}
		if db == nil {
			continue
		}
		for name, a := range db.Adapters {
			p.Adapters[name] = a
		}
	}

	for _, path := range ConfigFiles(opts) {
		db, err := read(path)
		if err != nil {
			return nil, err
		}
		if db == nil {
			continue
		}
		for name, a := range db.Adapters {
			p.Adapters[name] = a
		}
		for name, c := range db.Configurations {
			if c == nil {
				return nil, errors.ConfigInvalid(path, fmt.Sprintf("configuration %q is not an object", name))
			}
			p.Configurations[name] = c
		}
		p.ConfigFile = path
	}
	return p, nil
}

// WorkspaceRoot is the directory of the project file, or of the current
// file when there is none.
func (p *Project) WorkspaceRoot(currentFile string) string {
	if p.ConfigFile != "" {
		return filepath.Dir(p.ConfigFile)
	}
	if currentFile != "" {
		return filepath.Dir(currentFile)
	}
	cwd, _ := os.Getwd()
	return cwd
}
