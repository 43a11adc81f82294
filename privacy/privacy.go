// Package privacy scores a page's tracking intensity.
package privacy

import "strconv"

// Level is a coarse privacy rating.
type Level string

const (
	Good   Level = "good"
	Medium Level = "medium"
	Bad    Level = "bad"
)

// Score rates the share of tracking cookies among all cookies.
// ratio = tracking / max(total, 1); good below 0.2, medium below 0.5.
func Score(tracking, total int) Level {
	ratio := float64(tracking) / float64(max(total, 1))
	switch {
	case ratio < 0.2:
		return Good
	case ratio < 0.5:
		return Medium
	default:
		return Bad
	}
}

// Color is the badge color for the level.
func (l Level) Color() string {
	switch l {
	case Good:
		return "#48bb78"
	case Medium:
		return "#ed8936"
	default:
		return "#f56565"
	}
}

// Label is the human-facing name of the level.
func (l Level) Label() string {
	switch l {
	case Good:
		return "Good Privacy"
	case Medium:
		return "Medium Privacy"
	default:
		return "Poor Privacy"
	}
}

// BadgeText renders a count for a small badge.
func BadgeText(count int) string {
	if count > 99 {
		return "99+"
	}
	return strconv.Itoa(count)
}
