package dal

import (
	"regexp"
	"strings"

	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/status"
)

// SearchPattern quotes user input into a case-insensitive regular expression
func SearchPattern(search string) string {
	return "(?i)" + regexp.QuoteMeta(search)
}

// searchFields are the sample fields matched by a free-text search
func searchFields(s model.TestingSample) []string {
	return []string{s.RequestNumber, s.SampleID, s.SampleName, s.MethodCode, s.EquipmentName}
}

type sampleMatcher struct {
	f       SampleFilter
	re      *regexp.Regexp
	numbers map[string]bool
}

func newSampleMatcher(f SampleFilter) (*sampleMatcher, error) {
	m := &sampleMatcher{f: f}
	if f.Scoped {
		m.numbers = make(map[string]bool, len(f.RequestNumbers))
		for _, n := range f.RequestNumbers {
			m.numbers[n] = true
		}
	}
	if f.Search != "" {
		re, err := regexp.Compile(SearchPattern(f.Search))
		if err != nil {
			return nil, err
		}
		m.re = re
	}
	return m, nil
}

func (m *sampleMatcher) match(s model.TestingSample) bool {
	if m.f.Status != "" && s.SampleStatus != m.f.Status {
		return false
	}
	if m.f.CapabilityName != "" && !strings.EqualFold(s.CapabilityName, m.f.CapabilityName) {
		return false
	}
	if m.f.RequestNumber != "" && s.RequestNumber != m.f.RequestNumber {
		return false
	}
	if m.f.Scoped && !m.numbers[s.RequestNumber] {
		return false
	}
	if m.re != nil {
		for _, v := range searchFields(s) {
			if m.re.MatchString(v) {
				return true
			}
		}
		return false
	}
	return true
}

// participates reports whether email filed req or had it filed on their behalf
func participates(req model.Request, email string) bool {
	return strings.EqualFold(req.Requester.Email, email) ||
		strings.EqualFold(req.Requester.OnBehalfOf, email)
}

// bookingActive reports whether a booking in req still holds its slot
func bookingActive(req model.Request) bool {
	return req.RequestType == model.RequestTypeER &&
		req.Status != status.Rejected &&
		req.Status != status.Terminated
}
