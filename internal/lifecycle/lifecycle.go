// Package lifecycle keeps a request's aggregate status consistent with the
// statuses of its testing samples. Every sample mutation path goes through Apply.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/status"
)

var (
	ErrUnknownStatus = errors.New("unknown status")
	ErrSampleClosed  = errors.New("sample is terminated")
	ErrRequestClosed = errors.New("request is closed")
	ErrTransition    = errors.New("status change not allowed")
)

// Transition describes a requested sample status change and the optional
// stamps the caller supplied.
type Transition struct {
	To                    status.Status
	Note                  string
	ReceiveDate           *time.Time
	OperationCompleteDate *time.Time
	OperationCompleteBy   string
	EntryResultDate       *time.Time
	EntryResultBy         string
	Actor                 string
}

// Outcome reports what Apply did to the parent request
type Outcome struct {
	RequestChanged bool
	RequestStatus  status.Status
	Summary        status.Summary
}

// Reconcile derives the request status after a sample moved to changed.
// Closed requests never move.
func Reconcile(current status.Status, samples []status.Status, changed status.Status) (status.Status, bool) {
	if current.Terminal() {
		return current, false
	}
	if allCompleted(samples) {
		return status.Completed, current != status.Completed
	}
	if changed == status.InProgress && status.Summarize(samples).AllReceived() && current != status.InProgress {
		return status.InProgress, true
	}
	return current, false
}

// allCompleted ignores rejected and terminated samples but needs one completed
func allCompleted(samples []status.Status) bool {
	completed := 0
	for _, s := range samples {
		switch s {
		case status.Completed:
			completed++
		case status.Rejected, status.Terminated:
		default:
			return false
		}
	}
	return completed > 0
}

// Stamp sets the dates and actors that belong to the target status.
func Stamp(sample *model.TestingSample, t Transition, now time.Time) {
	pick := func(d *time.Time) *time.Time {
		if d != nil {
			v := d.UTC()
			return &v
		}
		v := now.UTC()
		return &v
	}
	who := func(explicit string) string {
		if explicit != "" {
			return explicit
		}
		return t.Actor
	}

	switch t.To {
	case status.InProgress:
		sample.ReceiveDate = pick(t.ReceiveDate)
		sample.ReceivedBy = t.Actor
	case status.PendingEntryResults:
		sample.OperationCompleteDate = pick(t.OperationCompleteDate)
		sample.OperationCompleteBy = who(t.OperationCompleteBy)
	case status.Completed:
		sample.EntryResultDate = pick(t.EntryResultDate)
		sample.EntryResultBy = who(t.EntryResultBy)
	}
	if t.Note != "" {
		sample.Note = t.Note
	}
	sample.SampleStatus = t.To
	sample.UpdatedAt = now.UTC()
}

// Apply mutates sample and, when the invariant requires it, req. siblings are
// the other samples of the same request. req may be nil when the parent
// document is missing.
func Apply(sample *model.TestingSample, siblings []model.TestingSample, req *model.Request, t Transition, now time.Time) (Outcome, error) {
	if !t.To.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownStatus, t.To)
	}
	if sample.SampleStatus == status.Terminated {
		return Outcome{}, ErrSampleClosed
	}
	if !sample.SampleStatus.CanTransition(t.To) {
		return Outcome{}, fmt.Errorf("%w: %s to %s", ErrTransition, sample.SampleStatus, t.To)
	}

	Stamp(sample, t, now)

	all := append(model.Statuses(siblings), sample.SampleStatus)
	out := Outcome{Summary: status.Summarize(all)}
	if req == nil {
		return out, nil
	}

	next, changed := Reconcile(req.Status, all, t.To)
	out.RequestStatus = next
	if changed {
		req.Status = next
		req.UpdatedAt = now.UTC()
		out.RequestChanged = true
	}
	return out, nil
}

// Terminate closes a request and every sample that has not completed.
func Terminate(req *model.Request, samples []model.TestingSample, reason, actor string, now time.Time) error {
	if req.Status == status.Terminated || req.Status == status.Completed {
		return fmt.Errorf("%w: %s", ErrRequestClosed, req.Status)
	}
	req.Status = status.Terminated
	req.Termination = &model.Termination{
		Reason:       reason,
		TerminatedBy: actor,
		TerminatedAt: now.UTC(),
	}
	req.UpdatedAt = now.UTC()
	for i := range samples {
		if samples[i].SampleStatus == status.Completed {
			continue
		}
		samples[i].SampleStatus = status.Terminated
		samples[i].UpdatedAt = now.UTC()
	}
	return nil
}
