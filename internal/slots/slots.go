// Package slots computes bookable equipment time slots for a test method's
// operating window and marks the ones taken by existing reservations.
package slots

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"stealthcompany.com/labportal/internal/model"
)

const (
	DefaultStartHour = 9
	DefaultEndHour   = 16
	DefaultSlotHours = 1.0

	// MaxRangeDays bounds a single availability query
	MaxRangeDays = 62

	DateLayout = "2006-01-02"
)

var (
	ErrInvalidDate  = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidRange = errors.New("invalid date range")
	ErrInvalidClock = errors.New("invalid time, expected HH:MM")
)

// Window is the daily operating window of a method
type Window struct {
	StartHour int     `json:"startHour"`
	EndHour   int     `json:"endHour"`
	SlotHours float64 `json:"slotDurationHours"`
}

// DefaultWindow is 09:00-16:00 in one hour slots
func DefaultWindow() Window {
	return Window{StartHour: DefaultStartHour, EndHour: DefaultEndHour, SlotHours: DefaultSlotHours}
}

// WindowFor reads the method's window, falling back to defaults for unset or
// inconsistent values.
func WindowFor(m *model.TestMethod) Window {
	w := DefaultWindow()
	if m == nil {
		return w
	}
	if m.OperatingStart > 0 || m.OperatingEnd > 0 {
		if m.OperatingStart >= 0 && m.OperatingEnd <= 24 && m.OperatingStart < m.OperatingEnd {
			w.StartHour = m.OperatingStart
			w.EndHour = m.OperatingEnd
		}
	}
	if m.SlotDurationHours > 0 {
		w.SlotHours = m.SlotDurationHours
	}
	return w
}

func (w Window) slotMinutes() int {
	return int(math.Round(w.SlotHours * 60))
}

// Slot is a half-open interval in minutes from midnight
type Slot struct {
	Start int
	End   int
}

func (s Slot) StartTime() string { return formatClock(s.Start) }
func (s Slot) EndTime() string   { return formatClock(s.End) }

// String renders the slot label used on the wire, e.g. "10:00-11:00"
func (s Slot) String() string {
	return s.StartTime() + "-" + s.EndTime()
}

// Overlaps uses half-open intervals, so back-to-back slots do not collide
func (s Slot) Overlaps(o Slot) bool {
	return s.Start < o.End && o.Start < s.End
}

// Slots partitions the window into fixed-width slots. A trailing remainder
// shorter than one slot is not bookable.
func (w Window) Slots() []Slot {
	step := w.slotMinutes()
	if step <= 0 {
		return nil
	}
	end := w.EndHour * 60
	var out []Slot
	for start := w.StartHour * 60; start+step <= end; start += step {
		out = append(out, Slot{Start: start, End: start + step})
	}
	return out
}

// Find looks up a slot by its label
func (w Window) Find(label string) (Slot, bool) {
	for _, s := range w.Slots() {
		if s.String() == label {
			return s, true
		}
	}
	return Slot{}, false
}

// Cost prices a number of slots of this window at an hourly rate
func (w Window) Cost(slotCount int, pricePerHour float64) float64 {
	return float64(slotCount) * w.SlotHours * pricePerHour
}

// Booking is an existing reservation on one date
type Booking struct {
	Date string
	Slot Slot
}

// BookingFrom converts a stored equipment booking
func BookingFrom(b model.EquipmentBooking) (Booking, error) {
	if _, err := ParseDate(b.ReservationDate); err != nil {
		return Booking{}, err
	}
	start, err := ParseClock(b.StartTime)
	if err != nil {
		return Booking{}, err
	}
	end, err := ParseClock(b.EndTime)
	if err != nil {
		return Booking{}, err
	}
	if end <= start {
		return Booking{}, fmt.Errorf("booking ends before it starts: %s-%s", b.StartTime, b.EndTime)
	}
	return Booking{Date: b.ReservationDate, Slot: Slot{Start: start, End: end}}, nil
}

// DaySummary aggregates one calendar day
type DaySummary struct {
	AvailableSlots int  `json:"availableSlots"`
	TotalSlots     int  `json:"totalSlots"`
	IsFullyBooked  bool `json:"isFullyBooked"`
	IsWeekend      bool `json:"isWeekend"`
}

// Availability is keyed by date (YYYY-MM-DD)
type Availability struct {
	BookedSlots         map[string][]string   `json:"bookedSlots"`
	AvailabilitySummary map[string]DaySummary `json:"availabilitySummary"`
}

// IsWeekend reports Saturday and Sunday, which have no bookable slots
func IsWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// SlotsOn returns the bookable slots of the window on a given day
func (w Window) SlotsOn(day time.Time) []Slot {
	if IsWeekend(day) {
		return nil
	}
	return w.Slots()
}

// Compute marks booked slots for every day in [from, to].
func Compute(w Window, from, to time.Time, bookings []Booking) Availability {
	byDate := make(map[string][]Slot)
	for _, b := range bookings {
		byDate[b.Date] = append(byDate[b.Date], b.Slot)
	}

	out := Availability{
		BookedSlots:         make(map[string][]string),
		AvailabilitySummary: make(map[string]DaySummary),
	}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		date := day.Format(DateLayout)
		daySlots := w.SlotsOn(day)
		booked := []string{}
		for _, s := range daySlots {
			for _, b := range byDate[date] {
				if s.Overlaps(b) {
					booked = append(booked, s.String())
					break
				}
			}
		}
		total := len(daySlots)
		out.BookedSlots[date] = booked
		out.AvailabilitySummary[date] = DaySummary{
			AvailableSlots: total - len(booked),
			TotalSlots:     total,
			IsFullyBooked:  total > 0 && len(booked) == total,
			IsWeekend:      IsWeekend(day),
		}
	}
	return out
}

// ParseDate parses YYYY-MM-DD in UTC
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// ParseRange validates an inclusive date range
func ParseRange(start, end string) (time.Time, time.Time, error) {
	from, err := ParseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date before start date", ErrInvalidRange)
	}
	if to.Sub(from) > (MaxRangeDays-1)*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: more than %d days", ErrInvalidRange, MaxRangeDays)
	}
	return from, to, nil
}

// ParseClock parses HH:MM into minutes from midnight
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, errH := strconv.Atoi(s[:2])
	m, errM := strconv.Atoi(s[3:])
	if errH != nil || errM != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
