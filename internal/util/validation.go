package util

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/sms-dispatch/internal/models"
)

// ErrInvalidTimeWindow indicates a proper-time boundary could not be parsed as
// HH:mm.
var ErrInvalidTimeWindow = errors.New("invalid HH:mm time window")

// ExtractParams collects the values of the wanted parameter names from the
// request's parameter list. Blank names and values are skipped, so a missing
// key in the returned map means the parameter was absent or empty.
func ExtractParams(params []models.Parameter, wanted ...string) map[string]string {
	out := make(map[string]string, len(wanted))
	if len(params) == 0 {
		return out
	}
	keys := make(map[string]struct{}, len(wanted))
	for _, w := range wanted {
		keys[w] = struct{}{}
	}
	for _, p := range params {
		name := strings.TrimSpace(p.Name)
		value := strings.TrimSpace(p.Value)
		if name == "" || value == "" {
			continue
		}
		if _, ok := keys[name]; ok {
			out[name] = value
		}
	}
	return out
}

// ParseClock parses an HH:mm string into minutes since midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTimeWindow, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// WithinWindow reports whether now falls inside the proper-time window given
// as HH:mm strings. A 00:00-00:00 window always allows. Both boundaries are
// exclusive, matching the upstream contact-policy contract.
func WithinWindow(startHHmm, endHHmm string, now time.Time) (bool, error) {
	start, err := ParseClock(startHHmm)
	if err != nil {
		return false, err
	}
	end, err := ParseClock(endHHmm)
	if err != nil {
		return false, err
	}
	if start == 0 && end == 0 {
		return true, nil
	}
	minute := now.Hour()*60 + now.Minute()
	return minute > start && minute < end, nil
}

// IsGSM7Compatible reports whether the message can be carried in the default
// single-byte alphabet. Conservative: anything outside basic latin fails.
func IsGSM7Compatible(message string) bool {
	for _, r := range message {
		if r > 127 {
			return false
		}
	}
	return true
}

// SplitCSV splits a comma-separated list, trimming blanks.
func SplitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
