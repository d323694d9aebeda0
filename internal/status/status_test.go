package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromLabel(t *testing.T) {
	tests := []struct {
		label    string
		expected Status
	}{
		{"pending receive sample", PendingReceive},
		{"in-progress", InProgress},
		{"completed", Completed},
		{"rejected", Rejected},
		{"terminated", Terminated},
		{"Pending Entry Results", PendingEntryResults},
		{"Pending Receive", PendingReceive},
		{"something-else", Status("something-else")},
		{"", Status("")},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.expected, FromLabel(tt.label))
		})
	}
}

func TestFromLabelIsTotalOverUIVocabulary(t *testing.T) {
	for label := range labels {
		assert.True(t, FromLabel(label).Valid(), "label %q maps to an unknown status", label)
	}
}

func TestParse(t *testing.T) {
	s, ok := Parse(" pending receive sample ")
	assert.True(t, ok)
	assert.Equal(t, PendingReceive, s)

	s, ok = Parse("archived")
	assert.False(t, ok)
	assert.Equal(t, Status("archived"), s)
}

func TestReceived(t *testing.T) {
	notReceived := map[Status]bool{PendingReceive: true, Submitted: true}
	for _, s := range All {
		assert.Equal(t, !notReceived[s], s.Received(), "status %q", s)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{PendingReceive, InProgress, true},
		{PendingReceive, Completed, true},
		{InProgress, PendingEntryResults, true},
		{PendingEntryResults, InProgress, true},
		{InProgress, InProgress, true},
		{InProgress, Rejected, true},
		{Submitted, Terminated, true},
		{InProgress, PendingReceive, false},
		{Completed, PendingReceive, false},
		{Completed, InProgress, false},
		{Completed, Completed, false},
		{Rejected, InProgress, false},
		{Terminated, InProgress, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+" to "+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestReceivable(t *testing.T) {
	for _, s := range All {
		assert.Equal(t, s == PendingReceive || s == Submitted, s.Receivable(), "status %q", s)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name        string
		statuses    []Status
		expected    Summary
		allReceived bool
	}{
		{
			name:        "no samples",
			statuses:    nil,
			expected:    Summary{},
			allReceived: false,
		},
		{
			name:        "all received",
			statuses:    []Status{InProgress, Completed, Rejected},
			expected:    Summary{Total: 3, Received: 3},
			allReceived: true,
		},
		{
			name:        "one pending receive",
			statuses:    []Status{InProgress, PendingReceive},
			expected:    Summary{Total: 2, Received: 1, Pending: 1},
			allReceived: false,
		},
		{
			name:        "submitted counts as pending",
			statuses:    []Status{Submitted, PendingEntryResults},
			expected:    Summary{Total: 2, Received: 1, Pending: 1},
			allReceived: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.statuses)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.allReceived, got.AllReceived())
		})
	}
}
