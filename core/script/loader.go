package script

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type scriptFile struct {
	Timeline TimelineKind `yaml:"timeline"`
	Entries  []Entry      `yaml:"entries"`
}

// LoadFile reads one authored script and returns a validated Store. The store
// name is the file name without extension.
func LoadFile(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading script %s", path)
	}

	var file scriptFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrapf(err, "parsing script %s", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	store, err := NewStore(name, file.Timeline, file.Entries)
	if err != nil {
		return nil, errors.Wrapf(err, "validating script %s", path)
	}
	return store, nil
}
