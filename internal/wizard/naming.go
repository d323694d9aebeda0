package wizard

import (
	"errors"
	"fmt"
	"strings"

	"stealthcompany.com/labportal/internal/model"
)

var (
	ErrIncompleteSample    = errors.New("sample is missing fields required for its name")
	ErrDuplicateSampleName = errors.New("duplicate sample name")
	ErrSampleIndex         = errors.New("sample index out of range")
)

const nameSeparator = "-"

// nameParts lists the fields that make up the generated name of a category
func nameParts(s model.SampleDefinition) []string {
	switch s.Category {
	case model.CategoryCommercial:
		return []string{s.Grade, s.LotNumber, s.SampleIdentity}
	case model.CategoryTD:
		return []string{s.TechShortCode, s.FeatureShortCode, s.SampleIdentity}
	case model.CategoryBenchmark:
		return []string{s.BenchmarkCompany, s.PolymerType, s.SampleIdentity}
	case model.CategoryInProcess:
		return []string{s.PolymerType, s.LotNumber, s.SampleIdentity}
	case model.CategoryChemicals:
		return []string{s.ChemicalName, s.SampleIdentity}
	default:
		return nil
	}
}

// GenerateName builds the sample name from its category fields. It is empty
// when the category is unknown or any required field is blank.
func GenerateName(s model.SampleDefinition) string {
	parts := nameParts(s)
	if len(parts) == 0 {
		return ""
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		parts[i] = p
	}
	return strings.Join(parts, nameSeparator)
}

// SampleList is the in-memory sample list of a draft. Names are unique.
type SampleList struct {
	items []model.SampleDefinition
}

// NewSampleList copies items and regenerates their names
func NewSampleList(items []model.SampleDefinition) *SampleList {
	l := &SampleList{items: make([]model.SampleDefinition, 0, len(items))}
	for _, s := range items {
		s.GeneratedName = GenerateName(s)
		l.items = append(l.items, s)
	}
	return l
}

// Items returns a copy of the list
func (l *SampleList) Items() []model.SampleDefinition {
	out := make([]model.SampleDefinition, len(l.items))
	copy(out, l.items)
	return out
}

// Len is the number of samples in the list
func (l *SampleList) Len() int {
	return len(l.items)
}

// IndexOf finds name, skipping the index being edited. Returns -1 if absent.
func (l *SampleList) IndexOf(name string, exclude int) int {
	for i, s := range l.items {
		if i == exclude {
			continue
		}
		if s.GeneratedName == name {
			return i
		}
	}
	return -1
}

func (l *SampleList) prepare(s model.SampleDefinition, exclude int) (model.SampleDefinition, error) {
	s.GeneratedName = GenerateName(s)
	if s.GeneratedName == "" {
		return s, ErrIncompleteSample
	}
	if l.IndexOf(s.GeneratedName, exclude) >= 0 {
		return s, fmt.Errorf("%w: %s", ErrDuplicateSampleName, s.GeneratedName)
	}
	return s, nil
}

// Add appends a sample unless its generated name is empty or already taken
func (l *SampleList) Add(s model.SampleDefinition) (model.SampleDefinition, error) {
	s, err := l.prepare(s, -1)
	if err != nil {
		return s, err
	}
	l.items = append(l.items, s)
	return s, nil
}

// Update replaces the sample at index i; its own current name does not count as a duplicate
func (l *SampleList) Update(i int, s model.SampleDefinition) (model.SampleDefinition, error) {
	if i < 0 || i >= len(l.items) {
		return s, ErrSampleIndex
	}
	s, err := l.prepare(s, i)
	if err != nil {
		return s, err
	}
	l.items[i] = s
	return s, nil
}

// Remove deletes the sample at index i
func (l *SampleList) Remove(i int) error {
	if i < 0 || i >= len(l.items) {
		return ErrSampleIndex
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return nil
}
