package status

import "strings"

// Status is the stored lifecycle value shared by requests and testing samples.
// The spelling and casing of each value is part of the client contract.
type Status string

const (
	Draft               Status = "draft"
	Submitted           Status = "submitted"
	PendingReceive      Status = "Pending Receive"
	InProgress          Status = "in-progress"
	PendingEntryResults Status = "Pending Entry Results"
	Completed           Status = "completed"
	Rejected            Status = "rejected"
	Terminated          Status = "terminated"
)

// All lists every stored status in lifecycle order.
var All = []Status{
	Draft,
	Submitted,
	PendingReceive,
	InProgress,
	PendingEntryResults,
	Completed,
	Rejected,
	Terminated,
}

// transitions lists the moves allowed out of each status. Rejected and
// terminated can be reached from any open status.
var transitions = map[Status][]Status{
	Draft:               {Submitted, PendingReceive},
	Submitted:           {PendingReceive, InProgress, PendingEntryResults, Completed},
	PendingReceive:      {InProgress, PendingEntryResults, Completed},
	InProgress:          {PendingEntryResults, Completed},
	PendingEntryResults: {InProgress, Completed},
}

// labels maps the UI filter vocabulary to stored values
var labels = map[string]Status{
	"pending receive sample": PendingReceive,
	"in-progress":            InProgress,
	"completed":              Completed,
	"rejected":               Rejected,
	"terminated":             Terminated,
}

// FromLabel maps a UI label to its stored status. Unmapped input is returned unchanged.
func FromLabel(label string) Status {
	if s, ok := labels[label]; ok {
		return s
	}
	return Status(label)
}

// Parse maps a label and reports whether the result is a known stored status.
func Parse(label string) (Status, bool) {
	s := FromLabel(strings.TrimSpace(label))
	return s, s.Valid()
}

// Valid reports whether s is one of the stored values.
func (s Status) Valid() bool {
	for _, known := range All {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == Completed || s == Rejected || s == Terminated
}

// CanTransition reports whether a sample may move from s to to. Staying on
// the same open status is allowed so notes and stamps can be corrected.
func (s Status) CanTransition(to Status) bool {
	if s.Terminal() {
		return false
	}
	if s == to || to == Rejected || to == Terminated {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Receivable reports whether a sample is still waiting at the receiving desk.
func (s Status) Receivable() bool {
	return s == PendingReceive || s == Submitted
}

// Received reports whether a sample with this status has left the receiving desk.
func (s Status) Received() bool {
	return s != PendingReceive && s != Submitted
}

func (s Status) String() string {
	return string(s)
}

// Summary counts received and pending samples of one request.
type Summary struct {
	Total    int
	Received int
	Pending  int
}

// AllReceived is true when the request has samples and none is pending.
func (s Summary) AllReceived() bool {
	return s.Total > 0 && s.Pending == 0
}

// Summarize applies the received predicate to a set of sample statuses.
func Summarize(statuses []Status) Summary {
	sum := Summary{Total: len(statuses)}
	for _, st := range statuses {
		if st.Received() {
			sum.Received++
		} else {
			sum.Pending++
		}
	}
	return sum
}
