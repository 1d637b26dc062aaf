// Package templates loads curated place record lists from YAML files.
package templates

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/placepin/importer/internal/model"
)

// File is the on-disk shape of a curated record list.
type File struct {
	Places []model.GeneratedPlaceRecord `yaml:"places"`
}

// Load reads a YAML template file of place records.
func Load(path string) ([]model.GeneratedPlaceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "templates: read %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML template bytes. It accepts both the wrapped
// {places: [...]} form and a bare top-level list.
func Parse(data []byte) ([]model.GeneratedPlaceRecord, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err == nil && len(f.Places) > 0 {
		return f.Places, nil
	}

	var bare []model.GeneratedPlaceRecord
	if err := yaml.Unmarshal(data, &bare); err != nil {
		return nil, eris.Wrap(err, "templates: parse yaml")
	}
	return bare, nil
}
