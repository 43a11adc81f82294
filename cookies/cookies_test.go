package cookies

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		want   Category
	}{
		{"sessionid", "example.com", Essential},
		{"XSRF-CSRF-TOKEN", "example.com", Essential},
		{"auth_token", "example.com", Essential},
		{"_ga", "example.com", Analytics},
		{"_gtm_id", "example.com", Analytics},
		{"visitor", "www.google-analytics.com", Analytics},
		{"_fbp", "example.com", Functional},
		{"fr_facebook", "example.com", Advertising},
		{"ads_prefs", "example.com", Advertising},
		{"tracker", "example.com", Advertising},
		{"theme", "example.com", Functional},
		// First match wins: "session" beats "ga".
		{"ga_session", "example.com", Essential},
	}
	for _, tt := range tests {
		got := Classify(Record{Name: tt.name, Domain: tt.domain})
		if got != tt.want {
			t.Errorf("Classify(%q, %q): got %q, want %q", tt.name, tt.domain, got, tt.want)
		}
	}
}

func TestClassify_Pure(t *testing.T) {
	r := Record{Name: "_ga", Domain: "example.com"}
	if Classify(r) != Classify(r) {
		t.Error("Classify is not deterministic")
	}
}

func TestIsTrackingCookie(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"_ga", true},
		{"_GID", true},
		{"mp_test", true},
		{"_hjSessionUser_123", true},
		{"_fs_uid", true},
		{"__utma", true},
		{"theme", false},
		{"sessionid", false},
	}
	for _, tt := range tests {
		if got := IsTrackingCookie(tt.name); got != tt.want {
			t.Errorf("IsTrackingCookie(%q): got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsTrackingCookie_IndependentOfCategory(t *testing.T) {
	// mp_test is functional by category yet tracked by name.
	r := Record{Name: "mp_test", Domain: "example.com"}
	if c := Classify(r); c != Functional {
		t.Errorf("category: got %q, want %q", c, Functional)
	}
	if !IsTrackingCookie(r.Name) {
		t.Error("mp_test should be a tracking cookie")
	}
}

func TestSummarize(t *testing.T) {
	cs := ClassifyAll([]Record{
		{Name: "sessionid"},
		{Name: "_ga"},
		{Name: "_gat"},
		{Name: "ads_id"},
		{Name: "theme"},
	})
	s := Summarize(cs)
	if s.Total != 5 || s.Essential != 1 || s.Analytics != 2 || s.Advertising != 1 || s.Functional != 1 {
		t.Errorf("summary: got %+v", s)
	}
	if s.Tracking() != 3 {
		t.Errorf("tracking: got %d, want 3", s.Tracking())
	}
}

func TestParseDocumentCookie(t *testing.T) {
	got := ParseDocumentCookie(" _ga=GA1.2.3; theme=dark ;=orphan; flag", "example.com")
	if len(got) != 3 {
		t.Fatalf("len: got %d, want 3 (%+v)", len(got), got)
	}
	if got[0].Name != "_ga" || got[0].Value != "GA1.2.3" || got[0].Domain != "example.com" {
		t.Errorf("first: got %+v", got[0])
	}
	if got[2].Name != "flag" || got[2].Value != "" {
		t.Errorf("valueless: got %+v", got[2])
	}
}

func TestNameOf(t *testing.T) {
	if got := NameOf("_ga=GA1.2; path=/; max-age=3600"); got != "_ga" {
		t.Errorf("NameOf: got %q, want %q", got, "_ga")
	}
	if got := NameOf("bare"); got != "bare" {
		t.Errorf("NameOf bare: got %q", got)
	}
}
