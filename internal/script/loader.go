package script

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// scriptFile is the on-disk YAML shape of a practice script.
type scriptFile struct {
	ID    string `yaml:"id"`
	Unit  string `yaml:"unit"`
	Topic string `yaml:"topic"`
	Title string `yaml:"title"`
	Steps []Step `yaml:"steps"`
}

// LoadFile reads and validates one YAML script file.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("script: open %q: %w", path, err)
	}
	defer f.Close()

	sc, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("script: parse %q: %w", path, err)
	}
	return sc, nil
}

// LoadFromReader decodes a YAML script from r and validates the result.
// Unknown fields are rejected so content typos fail loudly at load time.
func LoadFromReader(r io.Reader) (*Script, error) {
	var file scriptFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return New(file.ID, file.Unit, file.Topic, file.Title, file.Steps)
}

// LoadDir loads every *.yaml/*.yml file in dir into a Catalog.
// A single malformed script fails the whole load: the server must not start
// with invalid content.
func LoadDir(dir string) (*Catalog, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("script: glob %q: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	cat := NewCatalog()
	for _, file := range files {
		sc, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		if err := cat.Add(sc); err != nil {
			return nil, fmt.Errorf("script: %q: %w", file, err)
		}
	}
	return cat, nil
}
