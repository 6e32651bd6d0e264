package preferences

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/velora-notify/pkg/enums"
)

// QuietHours is a wall-clock window suppressing non-urgent toast admission.
// The window may wrap midnight (start > end). Times are "HH:MM" 24h strings.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Active reports whether now falls inside the window. A malformed window is
// never active; suppressing traffic on bad data would hide real alerts.
func (q QuietHours) Active(now time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err := parseMinutes(q.Start)
	if err != nil {
		return false
	}
	end, err := parseMinutes(q.End)
	if err != nil {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	if start == end {
		return false
	}
	if start < end {
		return minute >= start && minute < end
	}
	// wraps midnight, e.g. 22:00-08:00
	return minute >= start || minute < end
}

func parseMinutes(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q (expected HH:MM)", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour*60 + minute, nil
}

// Preferences is the per-user configuration gating toast visibility. It is
// consulted only at admission time; the archived list ignores it entirely.
type Preferences struct {
	Enabled         bool                    `json:"enabled"`
	PriorityOnly    bool                    `json:"priorityOnly"`
	Sound           bool                    `json:"sound"`
	Vibration       bool                    `json:"vibration"`
	QuietHours      QuietHours              `json:"quietHours"`
	CategoryEnabled map[enums.Category]bool `json:"categoryEnabled,omitempty"`
}

// Defaults returns the configuration applied to users who never saved one.
func Defaults() Preferences {
	return Preferences{
		Enabled:   true,
		Sound:     true,
		Vibration: true,
	}
}

// CategoryOn reports whether the category is enabled. Categories the user
// never toggled default to enabled.
func (p Preferences) CategoryOn(category enums.Category) bool {
	if p.CategoryEnabled == nil {
		return true
	}
	enabled, ok := p.CategoryEnabled[category]
	if !ok {
		return true
	}
	return enabled
}
