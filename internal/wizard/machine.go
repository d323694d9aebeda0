// Package wizard implements the request-creation step machine shared by the
// NTR, ER and ASR flows. Each flow is a linear list of steps; moving forward
// is gated by the current step's validator.
package wizard

import (
	"errors"
	"fmt"
	"strings"

	"stealthcompany.com/labportal/internal/model"
)

// Flow names a request wizard
type Flow string

const (
	FlowNTR Flow = "ntr"
	FlowER  Flow = "er"
	FlowASR Flow = "asr"
)

var (
	ErrUnknownFlow    = errors.New("unknown wizard flow")
	ErrStepOutOfRange = errors.New("step out of range")
)

// ParseFlow accepts the flow name in any case
func ParseFlow(s string) (Flow, error) {
	f := Flow(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FlowNTR, FlowER, FlowASR:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFlow, s)
}

// RequestType maps the flow to the stored request type
func (f Flow) RequestType() model.RequestType {
	switch f {
	case FlowER:
		return model.RequestTypeER
	case FlowASR:
		return model.RequestTypeASR
	default:
		return model.RequestTypeNTR
	}
}

// Draft is the accumulated form state of any flow
type Draft struct {
	Title        string                   `json:"title"`
	Requester    model.Requester          `json:"requester"`
	Funding      model.Funding            `json:"funding"`
	Priority     model.Priority           `json:"priority"`
	CapabilityID string                   `json:"capabilityId"`
	ASRNumber    string                   `json:"asrNumber,omitempty"`
	Samples      []model.SampleDefinition `json:"samples"`
	TestMethods  []model.MethodSelection  `json:"testMethods"`
	Reservations []model.SlotSelection    `json:"reservations"`
	Project      *model.Project           `json:"project,omitempty"`
	Confirmed    bool                     `json:"confirmed"`
}

// FieldError is one failed check
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists the failed checks of one step
type ValidationError struct {
	Step   int          `json:"step"`
	Name   string       `json:"name"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("step %d (%s) invalid: %s", e.Step, e.Name, strings.Join(msgs, "; "))
}

type validator func(d *Draft) []FieldError

// Step is one page of a wizard
type Step struct {
	Number   int    `json:"number"`
	Name     string `json:"name"`
	validate validator
}

// Machine walks a draft through the steps of one flow
type Machine struct {
	flow  Flow
	steps []Step
}

func newMachine(flow Flow, names []string, validators []validator) *Machine {
	m := &Machine{flow: flow}
	for i, name := range names {
		m.steps = append(m.steps, Step{Number: i + 1, Name: name, validate: validators[i]})
	}
	return m
}

var machines = map[Flow]*Machine{
	FlowNTR: newMachine(FlowNTR,
		[]string{"request-info", "funding-priority", "samples", "test-methods", "review", "confirm"},
		[]validator{requestInfo, fundingPriority, samplesRequired, testMethods, everySampleAssigned, confirmed},
	),
	FlowER: newMachine(FlowER,
		[]string{"request-info", "funding", "samples", "equipment", "schedule", "review", "confirm"},
		[]validator{requestInfo, fundingOnly, samplesOptional, equipmentChoice, schedule, slotsChosen, confirmed},
	),
	FlowASR: newMachine(FlowASR,
		[]string{"request-info", "project", "capability-funding", "samples", "review", "confirm"},
		[]validator{requestInfo, project, capabilityFunding, samplesRequired, expectedResults, confirmed},
	),
}

// For returns the machine of a flow
func For(flow Flow) (*Machine, error) {
	m, ok := machines[flow]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlow, flow)
	}
	return m, nil
}

func (m *Machine) Flow() Flow { return m.flow }

// Steps returns the step list in order
func (m *Machine) Steps() []Step {
	out := make([]Step, len(m.steps))
	copy(out, m.steps)
	return out
}

// Len is the number of steps
func (m *Machine) Len() int { return len(m.steps) }

// Validate runs the validator of a single step (1-based)
func (m *Machine) Validate(step int, d *Draft) error {
	if step < 1 || step > len(m.steps) {
		return fmt.Errorf("%w: %d", ErrStepOutOfRange, step)
	}
	s := m.steps[step-1]
	if errs := s.validate(d); len(errs) > 0 {
		return &ValidationError{Step: s.Number, Name: s.Name, Fields: errs}
	}
	return nil
}

// Next validates the current step and returns the following one. The last
// step stays where it is.
func (m *Machine) Next(current int, d *Draft) (int, error) {
	if err := m.Validate(current, d); err != nil {
		return current, err
	}
	if current == len(m.steps) {
		return current, nil
	}
	return current + 1, nil
}

// Back moves to the previous step without validation
func (m *Machine) Back(current int) int {
	if current <= 1 {
		return 1
	}
	if current > len(m.steps) {
		return len(m.steps)
	}
	return current - 1
}

// ValidateAll checks every step in order and stops at the first failure
func (m *Machine) ValidateAll(d *Draft) error {
	for i := range m.steps {
		if err := m.Validate(i+1, d); err != nil {
			return err
		}
	}
	return nil
}
