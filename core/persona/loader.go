package persona

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Curves   map[Archetype][]int `yaml:"curves"`
	Personas []Persona           `yaml:"personas"`
}

// LoadFile reads an authored persona catalog (personas + progress curves) and
// returns a validated Registry. Any validation failure is fatal to the caller:
// a catalog that does not validate must not be served.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading persona catalog %s", path)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrapf(err, "parsing persona catalog %s", path)
	}

	reg, err := NewRegistry(file.Personas, file.Curves)
	if err != nil {
		return nil, errors.Wrapf(err, "validating persona catalog %s", path)
	}
	return reg, nil
}
