package services

import (
	"testing"
	"time"
)

func lumaTestParser(t *testing.T) *LumaParser {
	t.Helper()
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		t.Fatalf("loading timezone: %v", err)
	}
	return NewLumaParser(nil, loc)
}

func TestLumaRecognizes(t *testing.T) {
	parser := lumaTestParser(t)

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://lu.ma/seattle-hackathon", true},
		{"https://www.lu.ma/seattle", true},
		{"https://luma.com/discover", true},
		{"https://www.luma.com/discover", true},
		{"https://eventbrite.com/e/12345", false},
		{"https://example.com/lu.ma", false},
		{"not a url", false},
	}

	for _, tt := range tests {
		if got := parser.Recognizes(tt.url); got != tt.expected {
			t.Errorf("Recognizes(%q) = %v, expected %v", tt.url, got, tt.expected)
		}
	}
}

func TestLumaParseSingleEventJSONLD(t *testing.T) {
	parser := lumaTestParser(t)

	html := `<html><head>
<meta property="og:image" content="https://images.lu.ma/cover.jpg">
<script type="application/ld+json">
{
  "@type": "Event",
  "name": "Seattle Go Meetup",
  "description": "Monthly meetup for Go developers",
  "startDate": "2026-09-10T18:00:00",
  "endDate": "2026-09-10T20:00:00",
  "offers": {"price": 0, "priceCurrency": "USD"}
}
</script>
</head><body></body></html>`

	result, ok := parser.Parse("https://lu.ma/seattle-go", html)
	if !ok {
		t.Fatal("expected structured parse to succeed")
	}
	if result.PageType != "single" {
		t.Errorf("PageType = %q, expected single", result.PageType)
	}
	if len(result.Events) != 1 {
		t.Fatalf("got %d events, expected 1", len(result.Events))
	}

	event := result.Events[0]
	if event.Name != "Seattle Go Meetup" {
		t.Errorf("Name = %q", event.Name)
	}
	if event.StartDate == nil {
		t.Fatal("expected StartDate to be set")
	}
	loc, _ := time.LoadLocation(DefaultTimezone)
	if got := event.StartDate.In(loc).Hour(); got != 18 {
		t.Errorf("start hour in platform timezone = %d, expected 18", got)
	}
	if event.Price != "Free" {
		t.Errorf("Price = %q, expected Free", event.Price)
	}
	if event.Website != "https://lu.ma/seattle-go" {
		t.Errorf("Website = %q, expected page URL fallback", event.Website)
	}
	if event.ImageURL != "https://images.lu.ma/cover.jpg" {
		t.Errorf("ImageURL = %q, expected og:image fallback", event.ImageURL)
	}
	if event.Confidence != 0.95 {
		t.Errorf("Confidence = %v, expected 0.95", event.Confidence)
	}
	if event.TempID == "" {
		t.Error("expected TempID to be assigned")
	}
}

func TestLumaParsePageDataListing(t *testing.T) {
	parser := lumaTestParser(t)

	html := `<html><body>
<script id="__NEXT_DATA__" type="application/json">
{
  "props": {
    "pageProps": {
      "initialData": {
        "entries": [
          {"event": {"name": "AI Builders Night", "start_at": "2026-09-12T01:00:00Z", "url": "ai-builders", "cover_url": "https://images.lu.ma/a.jpg"}},
          {"event": {"name": "Founder Coffee", "start_at": "2026-09-13T16:00:00Z", "api_id": "founder-coffee"}},
          {"event": {"name": "Missing Start Date"}}
        ]
      }
    }
  }
}
</script>
</body></html>`

	result, ok := parser.Parse("https://lu.ma/discover", html)
	if !ok {
		t.Fatal("expected structured parse to succeed")
	}
	if result.PageType != "listing" {
		t.Errorf("PageType = %q, expected listing", result.PageType)
	}
	if len(result.Events) != 2 {
		t.Fatalf("got %d events, expected 2 (entry without start date skipped)", len(result.Events))
	}

	if result.Events[0].Website != "https://lu.ma/ai-builders" {
		t.Errorf("Website = %q, expected slug-derived URL", result.Events[0].Website)
	}
	if result.Events[0].ImageURL != "https://images.lu.ma/a.jpg" {
		t.Errorf("ImageURL = %q", result.Events[0].ImageURL)
	}
	if result.Events[1].Website != "https://lu.ma/founder-coffee" {
		t.Errorf("Website = %q, expected api_id-derived URL", result.Events[1].Website)
	}
	for _, event := range result.Events {
		if event.Confidence != 0.95 {
			t.Errorf("Confidence = %v for %q, expected 0.95", event.Confidence, event.Name)
		}
	}
}

func TestLumaParseJSONLDListing(t *testing.T) {
	parser := lumaTestParser(t)

	html := `<html><head>
<script type="application/ld+json">
{
  "@type": "ItemList",
  "itemListElement": [
    {"@type": "ListItem", "item": {"@type": "Event", "name": "Demo Day", "startDate": "2026-10-01T17:00:00", "url": "https://lu.ma/demo-day", "offers": {"price": 25, "priceCurrency": "USD"}}},
    {"@type": "ListItem", "item": {"@type": "Event", "name": "Hack Night", "startDate": "2026-10-02T18:00:00", "url": "https://lu.ma/hack-night", "offers": {"price": 0}}},
    {"@type": "ListItem", "item": {"@type": "Place", "name": "Not An Event"}}
  ]
}
</script>
</head><body></body></html>`

	result, ok := parser.Parse("https://lu.ma/calendar", html)
	if !ok {
		t.Fatal("expected structured parse to succeed")
	}
	if result.PageType != "listing" {
		t.Errorf("PageType = %q, expected listing", result.PageType)
	}
	if len(result.Events) != 2 {
		t.Fatalf("got %d events, expected 2", len(result.Events))
	}
	if result.Events[0].Price != "USD 25" {
		t.Errorf("Price = %q, expected USD 25", result.Events[0].Price)
	}
	if result.Events[1].Price != "Free" {
		t.Errorf("Price = %q, expected Free", result.Events[1].Price)
	}
	for _, event := range result.Events {
		if event.Confidence != 0.9 {
			t.Errorf("Confidence = %v for %q, expected 0.9", event.Confidence, event.Name)
		}
	}
}

func TestLumaParseFallthrough(t *testing.T) {
	parser := lumaTestParser(t)

	tests := []struct {
		name string
		html string
	}{
		{"no structured data", `<html><body><h1>Events</h1></body></html>`},
		{"malformed json-ld", `<html><head><script type="application/ld+json">{not json</script></head></html>`},
		{"event missing required fields", `<html><head><script type="application/ld+json">{"@type": "Event", "description": "no name or date"}</script></head></html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parser.Parse("https://lu.ma/x", tt.html); ok {
				t.Error("expected parse to fall through")
			}
		})
	}
}

func TestPriceFromOffers(t *testing.T) {
	tests := []struct {
		name     string
		offers   interface{}
		expected string
	}{
		{"zero price", map[string]interface{}{"price": 0.0, "priceCurrency": "USD"}, "Free"},
		{"paid", map[string]interface{}{"price": 15.5, "priceCurrency": "USD"}, "USD 15.5"},
		{"string price", map[string]interface{}{"price": "20", "priceCurrency": "EUR"}, "EUR 20"},
		{"missing currency defaults", map[string]interface{}{"price": 10.0}, "USD 10"},
		{"offers array", []interface{}{map[string]interface{}{"price": 0.0}}, "Free"},
		{"nil offers", nil, ""},
		{"no price field", map[string]interface{}{"priceCurrency": "USD"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := priceFromOffers(tt.offers); got != tt.expected {
				t.Errorf("priceFromOffers = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestAbsoluteImageURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://images.lu.ma/a.jpg", "https://images.lu.ma/a.jpg"},
		{"http://images.lu.ma/a.jpg", "http://images.lu.ma/a.jpg"},
		{"/relative/path.jpg", ""},
		{"data:image/png;base64,abc", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := absoluteImageURL(tt.input); got != tt.expected {
			t.Errorf("absoluteImageURL(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
