package wizard

import (
	"fmt"
	"strings"

	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/slots"
)

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func requestInfo(d *Draft) []FieldError {
	var errs []FieldError
	if blank(d.Title) {
		errs = append(errs, FieldError{"title", "required"})
	}
	if blank(d.Requester.Name) {
		errs = append(errs, FieldError{"requester.name", "required"})
	}
	if blank(d.Requester.Email) || !strings.Contains(d.Requester.Email, "@") {
		errs = append(errs, FieldError{"requester.email", "valid email required"})
	}
	return errs
}

func fundingOnly(d *Draft) []FieldError {
	if d.Funding.UseIONumber {
		if blank(d.Funding.IONumber) {
			return []FieldError{{"funding.ioNumber", "required when IO number is selected"}}
		}
		if !blank(d.Funding.CostCenter) {
			return []FieldError{{"funding.costCenter", "must be empty when IO number is selected"}}
		}
		return nil
	}
	if blank(d.Funding.CostCenter) {
		return []FieldError{{"funding.costCenter", "required"}}
	}
	if !blank(d.Funding.IONumber) {
		return []FieldError{{"funding.ioNumber", "must be empty when cost center is selected"}}
	}
	return nil
}

func fundingPriority(d *Draft) []FieldError {
	errs := fundingOnly(d)
	switch d.Priority.Level {
	case "", model.PriorityNormal:
	case model.PriorityUrgent:
		if blank(d.Priority.ApproverEmail) {
			errs = append(errs, FieldError{"priority.approverEmail", "required for urgent requests"})
		}
		if blank(d.Priority.Reason) {
			errs = append(errs, FieldError{"priority.reason", "required for urgent requests"})
		}
	default:
		errs = append(errs, FieldError{"priority.level", fmt.Sprintf("unknown level %q", d.Priority.Level)})
	}
	return errs
}

func checkSamples(d *Draft) []FieldError {
	var errs []FieldError
	seen := make(map[string]int, len(d.Samples))
	for i, s := range d.Samples {
		field := fmt.Sprintf("samples[%d]", i)
		name := GenerateName(s)
		if name == "" {
			errs = append(errs, FieldError{field, ErrIncompleteSample.Error()})
			continue
		}
		if j, dup := seen[name]; dup {
			errs = append(errs, FieldError{field, fmt.Sprintf("%s: %s also used by samples[%d]", ErrDuplicateSampleName, name, j)})
			continue
		}
		seen[name] = i
	}
	return errs
}

func samplesRequired(d *Draft) []FieldError {
	if len(d.Samples) == 0 {
		return []FieldError{{"samples", "at least one sample is required"}}
	}
	return checkSamples(d)
}

func samplesOptional(d *Draft) []FieldError {
	return checkSamples(d)
}

func sampleNames(d *Draft) map[string]bool {
	names := make(map[string]bool, len(d.Samples))
	for _, s := range d.Samples {
		if n := GenerateName(s); n != "" {
			names[n] = true
		}
	}
	return names
}

func testMethods(d *Draft) []FieldError {
	if len(d.TestMethods) == 0 {
		return []FieldError{{"testMethods", "select at least one test method"}}
	}
	names := sampleNames(d)
	var errs []FieldError
	for i, m := range d.TestMethods {
		field := fmt.Sprintf("testMethods[%d]", i)
		if blank(m.MethodID) {
			errs = append(errs, FieldError{field + ".methodId", "required"})
		}
		if len(m.SampleNames) == 0 {
			errs = append(errs, FieldError{field + ".sampleNames", "assign at least one sample"})
		}
		for _, n := range m.SampleNames {
			if !names[n] {
				errs = append(errs, FieldError{field + ".sampleNames", fmt.Sprintf("unknown sample %q", n)})
			}
		}
	}
	return errs
}

// everySampleAssigned is the NTR review check: no sample is left without a method
func everySampleAssigned(d *Draft) []FieldError {
	if errs := testMethods(d); len(errs) > 0 {
		return errs
	}
	used := make(map[string]bool)
	for _, m := range d.TestMethods {
		for _, n := range m.SampleNames {
			used[n] = true
		}
	}
	var errs []FieldError
	for i, s := range d.Samples {
		if !used[GenerateName(s)] {
			errs = append(errs, FieldError{fmt.Sprintf("samples[%d]", i), "not assigned to any test method"})
		}
	}
	return errs
}

func equipmentChoice(d *Draft) []FieldError {
	if len(d.TestMethods) == 0 {
		return []FieldError{{"testMethods", "select the equipment method to reserve"}}
	}
	var errs []FieldError
	for i, m := range d.TestMethods {
		if blank(m.MethodID) {
			errs = append(errs, FieldError{fmt.Sprintf("testMethods[%d].methodId", i), "required"})
		}
	}
	return errs
}

func schedule(d *Draft) []FieldError {
	if len(d.Reservations) == 0 {
		return []FieldError{{"reservations", "pick at least one date"}}
	}
	methods := make(map[string]bool, len(d.TestMethods))
	for _, m := range d.TestMethods {
		methods[m.MethodID] = true
	}
	var errs []FieldError
	for i, r := range d.Reservations {
		field := fmt.Sprintf("reservations[%d]", i)
		if !methods[r.MethodID] {
			errs = append(errs, FieldError{field + ".methodId", "not one of the selected methods"})
		}
		if _, err := slots.ParseDate(r.Date); err != nil {
			errs = append(errs, FieldError{field + ".date", err.Error()})
		}
	}
	return errs
}

// slotsChosen is the ER review check: every reserved date has distinct slots
func slotsChosen(d *Draft) []FieldError {
	if errs := schedule(d); len(errs) > 0 {
		return errs
	}
	var errs []FieldError
	seen := make(map[string]bool)
	for i, r := range d.Reservations {
		field := fmt.Sprintf("reservations[%d].slots", i)
		if len(r.Slots) == 0 {
			errs = append(errs, FieldError{field, "pick at least one slot"})
			continue
		}
		for _, s := range r.Slots {
			key := r.MethodID + "|" + r.Date + "|" + s
			if seen[key] {
				errs = append(errs, FieldError{field, fmt.Sprintf("slot %s picked twice", s)})
				continue
			}
			seen[key] = true
		}
	}
	return errs
}

func project(d *Draft) []FieldError {
	if d.Project == nil {
		return []FieldError{{"project", "required"}}
	}
	var errs []FieldError
	if blank(d.Project.Name) {
		errs = append(errs, FieldError{"project.name", "required"})
	}
	if blank(d.Project.Objective) {
		errs = append(errs, FieldError{"project.objective", "required"})
	}
	if d.Project.DesiredCompletionDate != "" {
		if _, err := slots.ParseDate(d.Project.DesiredCompletionDate); err != nil {
			errs = append(errs, FieldError{"project.desiredCompletionDate", err.Error()})
		}
	}
	return errs
}

func capabilityFunding(d *Draft) []FieldError {
	errs := fundingOnly(d)
	if blank(d.CapabilityID) {
		errs = append(errs, FieldError{"capabilityId", "required"})
	}
	return errs
}

// expectedResults is the ASR review check
func expectedResults(d *Draft) []FieldError {
	if errs := project(d); len(errs) > 0 {
		return errs
	}
	if blank(d.Project.ExpectedResults) {
		return []FieldError{{"project.expectedResults", "required"}}
	}
	return nil
}

func confirmed(d *Draft) []FieldError {
	if !d.Confirmed {
		return []FieldError{{"confirmed", "confirm the request before submitting"}}
	}
	return nil
}
