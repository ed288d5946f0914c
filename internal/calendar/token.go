package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid date token")

// FormatToken encodes a calendar day as day_month_year without zero padding,
// e.g. 5_3_2025. This is the store's wire format for slot dates.
func FormatToken(t time.Time) string {
	y, m, d := t.Date()
	return fmt.Sprintf("%d_%d_%d", d, int(m), y)
}

// ParseToken decodes a day_month_year token into UTC midnight of that day.
func ParseToken(s string) (time.Time, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}

	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
		}
		nums[i] = n
	}

	day, month, year := nums[0], nums[1], nums[2]
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalises 31_2 into March; reject instead.
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}
	return t, nil
}

// DisplayDate formats a day as "12 Jun 2025".
func DisplayDate(t time.Time) string {
	return t.Format("2 Jan 2006")
}

// SlashDate formats a day as "12/6/2025", day first.
func SlashDate(t time.Time) string {
	return strings.ReplaceAll(FormatToken(t), "_", "/")
}
