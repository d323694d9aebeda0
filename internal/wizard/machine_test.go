package wizard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthcompany.com/labportal/internal/model"
)

func ntrDraft() *Draft {
	return &Draft{
		Title:     "Melt flow check",
		Requester: model.Requester{Name: "Ann Lee", Email: "ann@example.com"},
		Funding:   model.Funding{CostCenter: "CC-100"},
		Priority:  model.Priority{Level: model.PriorityNormal},
		Samples:   []model.SampleDefinition{commercial("HD5000S", "A1", "S1")},
		TestMethods: []model.MethodSelection{
			{MethodID: "m-mfi", SampleNames: []string{"HD5000S-A1-S1"}},
		},
		Confirmed: true,
	}
}

func TestStepCounts(t *testing.T) {
	tests := []struct {
		flow  Flow
		steps int
	}{
		{FlowNTR, 6},
		{FlowER, 7},
		{FlowASR, 6},
	}

	for _, tt := range tests {
		t.Run(string(tt.flow), func(t *testing.T) {
			m, err := For(tt.flow)
			require.NoError(t, err)
			assert.Equal(t, tt.steps, m.Len())
			for i, s := range m.Steps() {
				assert.Equal(t, i+1, s.Number)
			}
		})
	}

	_, err := For(Flow("xyz"))
	assert.ErrorIs(t, err, ErrUnknownFlow)
}

func TestParseFlow(t *testing.T) {
	f, err := ParseFlow(" ER ")
	require.NoError(t, err)
	assert.Equal(t, FlowER, f)
	assert.Equal(t, model.RequestTypeER, f.RequestType())

	_, err = ParseFlow("")
	assert.ErrorIs(t, err, ErrUnknownFlow)
}

func TestNextGatesOnCurrentStep(t *testing.T) {
	m, err := For(FlowNTR)
	require.NoError(t, err)

	d := ntrDraft()
	d.Title = ""

	step, err := m.Next(1, d)
	assert.Equal(t, 1, step)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "request-info", verr.Name)
	assert.Equal(t, "title", verr.Fields[0].Field)

	d.Title = "Melt flow check"
	step, err = m.Next(1, d)
	require.NoError(t, err)
	assert.Equal(t, 2, step)

	step, err = m.Next(6, d)
	require.NoError(t, err)
	assert.Equal(t, 6, step)
}

func TestBackNeverFailsBelowOne(t *testing.T) {
	m, err := For(FlowER)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Back(1))
	assert.Equal(t, 1, m.Back(0))
	assert.Equal(t, 3, m.Back(4))
	assert.Equal(t, 7, m.Back(20))
}

func TestValidateOutOfRange(t *testing.T) {
	m, err := For(FlowASR)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Validate(0, &Draft{}), ErrStepOutOfRange)
	assert.ErrorIs(t, m.Validate(7, &Draft{}), ErrStepOutOfRange)
}

func TestNTRValidateAll(t *testing.T) {
	m, err := For(FlowNTR)
	require.NoError(t, err)
	require.NoError(t, m.ValidateAll(ntrDraft()))

	tests := []struct {
		name   string
		mutate func(d *Draft)
		step   int
		field  string
	}{
		{
			name:   "both funding fields",
			mutate: func(d *Draft) { d.Funding.IONumber = "IO-1" },
			step:   2,
			field:  "funding.ioNumber",
		},
		{
			name:   "urgent without approver",
			mutate: func(d *Draft) { d.Priority = model.Priority{Level: model.PriorityUrgent, Reason: "line down"} },
			step:   2,
			field:  "priority.approverEmail",
		},
		{
			name: "duplicate samples",
			mutate: func(d *Draft) {
				d.Samples = append(d.Samples, commercial("HD5000S", "A1", "S1"))
			},
			step:  3,
			field: "samples[1]",
		},
		{
			name:   "method references unknown sample",
			mutate: func(d *Draft) { d.TestMethods[0].SampleNames = []string{"nope"} },
			step:   4,
			field:  "testMethods[0].sampleNames",
		},
		{
			name: "sample without method",
			mutate: func(d *Draft) {
				d.Samples = append(d.Samples, commercial("HD5000S", "A1", "S2"))
			},
			step:  5,
			field: "samples[1]",
		},
		{
			name:   "not confirmed",
			mutate: func(d *Draft) { d.Confirmed = false },
			step:   6,
			field:  "confirmed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ntrDraft()
			tt.mutate(d)

			var verr *ValidationError
			require.True(t, errors.As(m.ValidateAll(d), &verr))
			assert.Equal(t, tt.step, verr.Step)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestERAllowsNoSamples(t *testing.T) {
	m, err := For(FlowER)
	require.NoError(t, err)

	d := &Draft{
		Title:       "Rheometer time",
		Requester:   model.Requester{Name: "Ann Lee", Email: "ann@example.com"},
		Funding:     model.Funding{UseIONumber: true, IONumber: "IO-77"},
		TestMethods: []model.MethodSelection{{MethodID: "m-rheo"}},
		Reservations: []model.SlotSelection{
			{MethodID: "m-rheo", Date: "2026-10-19", Slots: []string{"09:00-10:00", "10:00-11:00"}},
		},
		Confirmed: true,
	}
	require.NoError(t, m.ValidateAll(d))

	d.Reservations[0].Date = "2026-13-01"
	var verr *ValidationError
	require.True(t, errors.As(m.Validate(5, d), &verr))
	assert.Equal(t, "reservations[0].date", verr.Fields[0].Field)

	d.Reservations[0].Date = "2026-10-19"
	d.Reservations[0].Slots = []string{"09:00-10:00", "09:00-10:00"}
	require.True(t, errors.As(m.Validate(6, d), &verr))
	assert.Equal(t, "reservations[0].slots", verr.Fields[0].Field)
}

func TestASRProjectSteps(t *testing.T) {
	m, err := For(FlowASR)
	require.NoError(t, err)

	d := &Draft{
		Title:        "Film haze study",
		Requester:    model.Requester{Name: "Ann Lee", Email: "ann@example.com"},
		Funding:      model.Funding{CostCenter: "CC-9"},
		CapabilityID: "cap-micro",
		Samples:      []model.SampleDefinition{commercial("HD5000S", "A1", "S1")},
		Project:      &model.Project{Name: "Haze", Objective: "find root cause"},
		Confirmed:    true,
	}

	var verr *ValidationError
	require.True(t, errors.As(m.ValidateAll(d), &verr))
	assert.Equal(t, 5, verr.Step)
	assert.Equal(t, "project.expectedResults", verr.Fields[0].Field)

	d.Project.ExpectedResults = "report"
	assert.NoError(t, m.ValidateAll(d))

	d.CapabilityID = ""
	require.True(t, errors.As(m.Validate(3, d), &verr))
	assert.Equal(t, "capabilityId", verr.Fields[0].Field)
}
