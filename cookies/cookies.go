// Package cookies classifies cookies by purpose from their name and domain.
//
// Two independent pattern sets live here: the category rules used for
// scoring and the narrower tracking list used to decide whether a freshly
// written cookie should be reported and removed. They overlap on purpose
// and are never merged.
package cookies

import (
	"strings"
)

// Record is an immutable snapshot of one cookie.
type Record struct {
	Name     string `json:"name"`
	Value    string `json:"value,omitempty"`
	Domain   string `json:"domain"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
	SameSite string `json:"same_site,omitempty"`
}

// Category is the purpose of a cookie.
type Category string

const (
	Essential   Category = "essential"
	Analytics   Category = "analytics"
	Advertising Category = "advertising"
	Functional  Category = "functional"
)

// Classified pairs a record with its category.
type Classified struct {
	Record
	Category Category `json:"category"`
}

var (
	essentialTerms   = []string{"session", "csrf", "auth", "login", "security"}
	analyticsTerms   = []string{"ga", "gtm", "analytics", "_utm"}
	advertisingTerms = []string{"ads", "doubleclick", "facebook", "twitter", "pixel", "track"}

	trackingNames = []string{
		"_ga", "_gid", "_gat", "_fbp", "_fbc", "__utm",
		"ads", "doubleclick", "_hjid", "_hjsession", "mp_", "_fs_uid",
	}
)

// Classify returns the category of c. Rules are checked in order and the
// first match wins; anything unmatched is functional.
func Classify(c Record) Category {
	name := strings.ToLower(c.Name)
	switch {
	case containsAny(name, essentialTerms):
		return Essential
	case containsAny(name, analyticsTerms),
		strings.Contains(strings.ToLower(c.Domain), "google-analytics"):
		return Analytics
	case containsAny(name, advertisingTerms):
		return Advertising
	default:
		return Functional
	}
}

// IsTrackingCookie reports whether name matches the tracking list.
func IsTrackingCookie(name string) bool {
	return containsAny(strings.ToLower(name), trackingNames)
}

// ClassifyAll classifies every record, preserving order.
func ClassifyAll(records []Record) []Classified {
	out := make([]Classified, 0, len(records))
	for _, r := range records {
		out = append(out, Classified{Record: r, Category: Classify(r)})
	}
	return out
}

// Summary counts cookies per category.
type Summary struct {
	Total       int `json:"total"`
	Essential   int `json:"essential"`
	Analytics   int `json:"analytics"`
	Advertising int `json:"advertising"`
	Functional  int `json:"functional"`
}

// Tracking is the number of analytics and advertising cookies.
func (s Summary) Tracking() int { return s.Analytics + s.Advertising }

// Summarize counts classified cookies per category.
func Summarize(cs []Classified) Summary {
	s := Summary{Total: len(cs)}
	for _, c := range cs {
		switch c.Category {
		case Essential:
			s.Essential++
		case Analytics:
			s.Analytics++
		case Advertising:
			s.Advertising++
		default:
			s.Functional++
		}
	}
	return s
}

// ParseDocumentCookie splits a document.cookie style string ("a=1; b=2")
// into records attributed to domain. Pairs without a name are dropped.
func ParseDocumentCookie(header, domain string) []Record {
	var out []Record
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, Record{Name: name, Value: strings.TrimSpace(value), Domain: domain, Path: "/"})
	}
	return out
}

// NameOf returns the cookie name of a single write such as
// "_ga=GA1.2; path=/; max-age=3600".
func NameOf(write string) string {
	first, _, _ := strings.Cut(write, ";")
	name, _, _ := strings.Cut(first, "=")
	return strings.TrimSpace(name)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
