// Package config reads cfnls.toml, the optional startup configuration.
// The file is only ever read; settings changed by the editor stay in memory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"cfnls/internal/validate"
)

// FileName is the configuration file looked up from the working directory.
const FileName = "cfnls.toml"

// File is a loaded configuration.
type File struct {
	// Path is the file that was read; empty for Default().
	Path string
	// Root is the directory holding Path.
	Root   string
	Config Config
}

type Config struct {
	Validator ValidatorConfig `toml:"validator"`
	Documents DocumentsConfig `toml:"documents"`
}

type ValidatorConfig struct {
	Path        string   `toml:"path"`
	IgnoreRules []string `toml:"ignore_rules"`
	AppendRules []string `toml:"append_rules"`
}

type DocumentsConfig struct {
	Markers []string `toml:"markers"`
	Exclude []string `toml:"exclude"`
}

// Default is the configuration used when no cfnls.toml exists.
func Default() *File {
	return &File{
		Config: Config{
			Documents: DocumentsConfig{Markers: []string{validate.DefaultMarker}},
		},
	}
}

// Find walks from startDir up to the filesystem root looking for cfnls.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load parses path. Missing sections keep their defaults.
func Load(path string) (*File, error) {
	file := Default()
	meta, err := toml.DecodeFile(path, &file.Config)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	if !meta.IsDefined("documents", "markers") {
		file.Config.Documents.Markers = []string{validate.DefaultMarker}
	}
	for _, marker := range file.Config.Documents.Markers {
		if strings.TrimSpace(marker) == "" {
			return nil, fmt.Errorf("%s: [documents].markers contains an empty marker", path)
		}
	}
	for _, pattern := range file.Config.Documents.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%s: [documents].exclude: invalid pattern %q", path, pattern)
		}
	}
	file.Path = path
	file.Root = filepath.Dir(path)
	return file, nil
}

// Discover finds and loads cfnls.toml above startDir, falling back to Default.
func Discover(startDir string) (*File, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Settings converts the [validator] section. A relative validator path with
// a directory component is resolved against the config file's directory;
// bare command names are left for PATH lookup.
func (f *File) Settings() validate.Settings {
	v := f.Config.Validator
	path := strings.TrimSpace(v.Path)
	if path != "" && f.Root != "" && !filepath.IsAbs(path) && strings.ContainsRune(filepath.ToSlash(path), '/') {
		path = filepath.Join(f.Root, path)
	}
	return validate.Settings{
		Path:        path,
		IgnoreRules: v.IgnoreRules,
		AppendRules: v.AppendRules,
	}
}

// Exclude returns the exclude globs anchored at the config file's directory.
// Patterns that are already absolute are kept.
func (f *File) Exclude() []string {
	out := make([]string, 0, len(f.Config.Documents.Exclude))
	for _, pattern := range f.Config.Documents.Exclude {
		if f.Root == "" || strings.HasPrefix(pattern, "/") || strings.HasPrefix(pattern, "**") {
			out = append(out, pattern)
			continue
		}
		out = append(out, filepath.ToSlash(f.Root)+"/"+pattern)
	}
	return out
}

// Markers returns the template markers.
func (f *File) Markers() []string {
	return f.Config.Documents.Markers
}
