package census

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the zero-padded storage format of every date string
const DateLayout = "2006-01-02"

// DisplayLayout is the label format of trend points
const DisplayLayout = "02 Jan"

// ErrInvalidRange is wrapped by every malformed or inverted date range
var ErrInvalidRange = errors.New("invalid date range")

// ParseDate parses a YYYY-MM-DD string. Single-digit months or days are rejected
// so that lexicographic comparison of stored dates stays correct.
func ParseDate(s string) (time.Time, error) {
	if len(s) != len(DateLayout) {
		return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidRange, s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", ErrInvalidRange, s, err)
	}
	return t, nil
}

// ValidateRange checks that start and end are well formed and start <= end.
// maxDays <= 0 disables the length check.
func ValidateRange(start, end string, maxDays int) error {
	s, err := ParseDate(start)
	if err != nil {
		return err
	}
	e, err := ParseDate(end)
	if err != nil {
		return err
	}
	if s.After(e) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, start, end)
	}
	if maxDays > 0 && DayCount(s, e) > maxDays {
		return fmt.Errorf("%w: %s..%s spans more than %d days", ErrInvalidRange, start, end, maxDays)
	}
	return nil
}

// DayCount is the inclusive number of calendar days between s and e
func DayCount(s, e time.Time) int {
	return int(e.Sub(s).Hours()/24) + 1
}

// EnumerateDates lists every date from start to end inclusive, ascending
func EnumerateDates(start, end string) ([]string, error) {
	if err := ValidateRange(start, end, 0); err != nil {
		return nil, err
	}
	s, _ := ParseDate(start)
	e, _ := ParseDate(end)

	dates := make([]string, 0, DayCount(s, e))
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}

// DisplayDate formats a stored date for chart labels
func DisplayDate(date string) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format(DisplayLayout)
}
