package services

import (
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Lowercases host and strips www",
			input:    "https://WWW.Example.COM/Events",
			expected: "https://example.com/Events",
		},
		{
			name:     "Strips trailing slash on non-root path",
			input:    "https://example.com/events/",
			expected: "https://example.com/events",
		},
		{
			name:     "Root slash removed",
			input:    "https://example.com/",
			expected: "https://example.com",
		},
		{
			name:     "Scheme-less input assumes https",
			input:    "lu.ma/gomeetup",
			expected: "https://lu.ma/gomeetup",
		},
		{
			name:     "Fragment dropped",
			input:    "https://example.com/e#tickets",
			expected: "https://example.com/e",
		},
		{
			name:     "Non-http scheme rejected",
			input:    "ftp://example.com/file",
			expected: "",
		},
		{
			name:     "Empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "Whitespace only",
			input:    "   ",
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeURL(tc.input); got != tc.expected {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	inputs := []string{
		"https://www.example.com/events/?utm_source=a&b=2&a=1#frag",
		"http://Lu.Ma/abc/",
		"example.com/e?ref=tw&id=5",
	}

	for _, input := range inputs {
		once := NormalizeURL(input)
		twice := NormalizeURL(once)
		if once != twice {
			t.Errorf("NormalizeURL not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestNormalizeURLTrackingParams(t *testing.T) {
	withTracking := NormalizeURL("https://x.com/e?utm_source=a&id=5")
	without := NormalizeURL("https://x.com/e?id=5")
	if withTracking != without {
		t.Errorf("Tracking params not stripped: %q vs %q", withTracking, without)
	}

	withMore := NormalizeURL("https://x.com/e?fbclid=123&gclid=456&ref=tw&id=5")
	if withMore != without {
		t.Errorf("fbclid/gclid/ref not stripped: %q vs %q", withMore, without)
	}
}

func TestNormalizeURLQueryOrderIndependence(t *testing.T) {
	a := NormalizeURL("https://x.com/e?b=2&a=1")
	b := NormalizeURL("https://x.com/e?a=1&b=2")
	if a != b {
		t.Errorf("Query order should not matter: %q vs %q", a, b)
	}
}

func TestNormalizeURLCandidatesAliases(t *testing.T) {
	luma := NormalizeURLCandidates("https://lu.ma/gomeetup")
	lumaCom := NormalizeURLCandidates("https://www.luma.com/gomeetup")

	overlap := false
	for _, a := range luma {
		for _, b := range lumaCom {
			if a == b {
				overlap = true
			}
		}
	}
	if !overlap {
		t.Errorf("Expected alias-host candidate sets to overlap: %v vs %v", luma, lumaCom)
	}

	if len(luma) < 2 {
		t.Errorf("Expected at least primary + alias candidates, got %v", luma)
	}
	if luma[0] != "https://lu.ma/gomeetup" {
		t.Errorf("Primary canonical form must come first, got %q", luma[0])
	}
}

func TestNormalizeURLCandidatesNonAliasHost(t *testing.T) {
	candidates := NormalizeURLCandidates("https://example.com/event")
	if len(candidates) != 1 {
		t.Errorf("Non-alias host should yield only the primary form, got %v", candidates)
	}

	if got := NormalizeURLCandidates("not a url at %%%"); got != nil {
		t.Errorf("Unparseable input should yield nil, got %v", got)
	}
}
