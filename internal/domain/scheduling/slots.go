package scheduling

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date form used on the wire.
const DateLayout = "2006-01-02"

var slotLabel = regexp.MustCompile(`^(0?[1-9]|1[0-2]):(00|15|30|45) (AM|PM)$`)

// SlotTime is a slot label converted to a 24-hour clock.
type SlotTime struct {
	Hour   int
	Minute int
}

// ParseSlot converts "HH:MM AM|PM" to 24-hour time. 12 AM is hour 0 and
// 12 PM stays 12; minutes must fall on a quarter hour.
func ParseSlot(label string) (SlotTime, error) {
	m := slotLabel.FindStringSubmatch(label)
	if m == nil {
		return SlotTime{}, fmt.Errorf("%w: %q", ErrInvalidSlotFormat, label)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	switch {
	case m[3] == "AM" && hour == 12:
		hour = 0
	case m[3] == "PM" && hour != 12:
		hour += 12
	}
	return SlotTime{Hour: hour, Minute: minute}, nil
}

// ParseDate reads a calendar date. A full ISO timestamp is accepted and
// truncated to its date part; the time of day is never trusted.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) && s[len(DateLayout)] == 'T' {
		s = s[:len(DateLayout)]
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// Catalog is the ordered list of bookable labels in a business day.
type Catalog struct {
	labels []string
	index  map[string]int
}

func NewCatalog(labels []string) (*Catalog, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("slot catalog is empty")
	}
	c := &Catalog{index: make(map[string]int, len(labels))}
	for _, l := range labels {
		if _, err := ParseSlot(l); err != nil {
			return nil, err
		}
		if _, dup := c.index[l]; dup {
			return nil, fmt.Errorf("duplicate slot %q", l)
		}
		c.index[l] = len(c.labels)
		c.labels = append(c.labels, l)
	}
	return c, nil
}

// Labels returns a copy of the catalog in order.
func (c *Catalog) Labels() []string {
	return append([]string(nil), c.labels...)
}

func (c *Catalog) Contains(label string) bool {
	_, ok := c.index[label]
	return ok
}

// Free returns the catalog minus occupied, keeping catalog order.
func (c *Catalog) Free(occupied []string) []string {
	taken := make(map[string]bool, len(occupied))
	for _, o := range occupied {
		taken[o] = true
	}
	free := make([]string, 0, len(c.labels))
	for _, l := range c.labels {
		if !taken[l] {
			free = append(free, l)
		}
	}
	return free
}

// Validator decides whether a (date, slot) pair is still ahead of the
// clinic's current time.
type Validator struct {
	now func() time.Time
	loc *time.Location
}

// NewValidator uses time.Now and time.Local when given nil.
func NewValidator(now func() time.Time, loc *time.Location) *Validator {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &Validator{now: now, loc: loc}
}

// IsFutureSlot rejects days before today. For today the slot must start
// strictly after now. Any later day is accepted. Malformed input is an
// error rather than a rejection.
func (v *Validator) IsFutureSlot(date, timeSlot string) (bool, error) {
	d, err := ParseDate(date)
	if err != nil {
		return false, err
	}
	st, err := ParseSlot(timeSlot)
	if err != nil {
		return false, err
	}

	now := v.now().In(v.loc)
	y, m, dd := now.Date()
	today := time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)

	switch {
	case d.Before(today):
		return false, nil
	case d.After(today):
		return true, nil
	}
	start := time.Date(y, m, dd, st.Hour, st.Minute, 0, 0, v.loc)
	return start.After(now), nil
}
