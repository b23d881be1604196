package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a profile set:
//
//	profiles:
//	  - entityType: Prescription
//	    display: [drug, dose]
//	    collections:
//	      - field: items
//	        label: Items
//	        key: [drugId, name]
//	        signature: [dose, days]
//	        name: [name]
type File struct {
	Profiles []Profile `yaml:"profiles"`
}

// Parse decodes a profile file.
func Parse(data []byte) ([]Profile, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	for _, p := range f.Profiles {
		if err := p.validate(); err != nil {
			return nil, err
		}
	}
	return f.Profiles, nil
}

// LoadFile reads path and registers every profile in it, replacing built-ins
// with the same entity type.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profiles: %w", err)
	}
	profiles, err := Parse(data)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}
