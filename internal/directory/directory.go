// Package directory holds the specialist directory and the embedding index
// used for recommendation retrieval.
package directory

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgeGroup classifies specialists and clients by audience.
type AgeGroup string

const (
	AgeGroupChildren AgeGroup = "children"
	AgeGroupAdults   AgeGroup = "adults"
	AgeGroupAll      AgeGroup = "all"
	AgeGroupUnknown  AgeGroup = "unknown"
)

// ErrEmptyDirectory is returned when the directory file contains no records.
var ErrEmptyDirectory = errors.New("specialist directory is empty")

// Specialist is one immutable record from the directory resource.
type Specialist struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Link        string   `yaml:"link"`
	AgeGroup    AgeGroup `yaml:"age_group"`
	MinAge      *int     `yaml:"min_age,omitempty"`
	MaxAge      *int     `yaml:"max_age,omitempty"`
}

type directoryFile struct {
	Specialists []Specialist `yaml:"specialists"`
}

// LoadFile reads and validates the specialist directory from a YAML file.
// Any validation failure is fatal: the service must not start with a
// missing or malformed directory.
func LoadFile(path string) ([]Specialist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file %s: %w", path, err)
	}

	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse directory file %s: %w", path, err)
	}

	if len(f.Specialists) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDirectory, path)
	}

	for i, s := range f.Specialists {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("directory record %d: name is required", i)
		}
		if strings.TrimSpace(s.Description) == "" {
			return nil, fmt.Errorf("directory record %d (%s): description is required", i, s.Name)
		}
		if strings.TrimSpace(s.Link) == "" {
			return nil, fmt.Errorf("directory record %d (%s): link is required", i, s.Name)
		}
		switch s.AgeGroup {
		case AgeGroupChildren, AgeGroupAdults, AgeGroupAll:
		default:
			return nil, fmt.Errorf("directory record %d (%s): invalid age_group %q", i, s.Name, s.AgeGroup)
		}
		if s.MinAge != nil && s.MaxAge != nil && *s.MinAge > *s.MaxAge {
			return nil, fmt.Errorf("directory record %d (%s): min_age exceeds max_age", i, s.Name)
		}
	}

	return f.Specialists, nil
}
