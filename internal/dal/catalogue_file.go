package dal

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadCatalogueFile reads the YAML catalogue imported by the seed command
func LoadCatalogueFile(path string) (Catalogue, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalogue{}, fmt.Errorf("open catalogue: %w", err)
	}
	defer f.Close()
	return DecodeCatalogue(f)
}

// DecodeCatalogue parses and checks a catalogue. Unknown keys are rejected.
func DecodeCatalogue(r io.Reader) (Catalogue, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Catalogue{}, fmt.Errorf("read catalogue: %w", err)
	}
	var c Catalogue
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalogue{}, fmt.Errorf("parse catalogue: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalogue{}, err
	}
	return c, nil
}

// Validate checks ids are unique and references resolve
func (c Catalogue) Validate() error {
	caps := make(map[string]bool, len(c.Capabilities))
	for i, v := range c.Capabilities {
		if v.ID == "" || v.Name == "" {
			return fmt.Errorf("capabilities[%d]: id and name are required", i)
		}
		if caps[v.ID] {
			return fmt.Errorf("capabilities[%d]: duplicate id %q", i, v.ID)
		}
		caps[v.ID] = true
	}

	equipment := make(map[string]bool, len(c.Equipment))
	for i, v := range c.Equipment {
		if v.ID == "" || v.Name == "" {
			return fmt.Errorf("equipment[%d]: id and name are required", i)
		}
		if equipment[v.ID] {
			return fmt.Errorf("equipment[%d]: duplicate id %q", i, v.ID)
		}
		if v.CapabilityID != "" && !caps[v.CapabilityID] {
			return fmt.Errorf("equipment[%d]: unknown capability %q", i, v.CapabilityID)
		}
		equipment[v.ID] = true
	}

	methods := make(map[string]bool, len(c.TestMethods))
	for i, v := range c.TestMethods {
		if v.ID == "" || v.MethodCode == "" {
			return fmt.Errorf("testMethods[%d]: id and methodCode are required", i)
		}
		if methods[v.ID] {
			return fmt.Errorf("testMethods[%d]: duplicate id %q", i, v.ID)
		}
		if !caps[v.CapabilityID] {
			return fmt.Errorf("testMethods[%d]: unknown capability %q", i, v.CapabilityID)
		}
		if v.EquipmentID != "" && !equipment[v.EquipmentID] {
			return fmt.Errorf("testMethods[%d]: unknown equipment %q", i, v.EquipmentID)
		}
		if v.PricePerSample < 0 || v.PricePerHour < 0 {
			return fmt.Errorf("testMethods[%d]: prices must not be negative", i)
		}
		methods[v.ID] = true
	}
	return nil
}
