package httpcheck

import (
	"testing"

	"github.com/jpalmerr/statusboard/poll"
)

func TestHTTPStatusExtractor(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       poll.Status
	}{
		{"200 OK", 200, poll.StatusGood},
		{"204 No Content", 204, poll.StatusGood},
		{"299 edge case", 299, poll.StatusGood},

		{"400 Bad Request", 400, poll.StatusWarning},
		{"404 Not Found", 404, poll.StatusWarning},
		{"499 edge case", 499, poll.StatusWarning},

		{"500 Internal Server Error", 500, poll.StatusCritical},
		{"503 Service Unavailable", 503, poll.StatusCritical},
		{"0 no response", 0, poll.StatusCritical},
		{"100 Continue", 100, poll.StatusCritical},
		{"301 Redirect", 301, poll.StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HTTPStatusExtractor(nil, tt.statusCode)
			if got != tt.want {
				t.Errorf("HTTPStatusExtractor(%d) = %v, want %v", tt.statusCode, got, tt.want)
			}
		})
	}
}

func TestJSONFieldExtractor(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want poll.Status
	}{
		{"status ok", "status", `{"status": "ok"}`, poll.StatusGood},
		{"status healthy", "status", `{"status": "healthy"}`, poll.StatusGood},
		{"status running", "status", `{"status": "running"}`, poll.StatusGood},
		{"status green", "status", `{"status": "green"}`, poll.StatusGood},
		{"status operational", "status", `{"status": "operational"}`, poll.StatusGood},

		{"status degraded", "status", `{"status": "degraded"}`, poll.StatusWarning},
		{"status yellow", "status", `{"status": "yellow"}`, poll.StatusWarning},
		{"status amber", "status", `{"status": "amber"}`, poll.StatusWarning},

		{"status maintenance", "status", `{"status": "maintenance"}`, poll.StatusMaintenance},
		{"status drain", "status", `{"status": "DRAIN"}`, poll.StatusMaintenance},

		{"status down", "status", `{"status": "down"}`, poll.StatusCritical},
		{"status failed", "status", `{"status": "failed"}`, poll.StatusCritical},
		{"status red", "status", `{"status": "red"}`, poll.StatusCritical},

		{"nested data.status", "data.status", `{"data": {"status": "ok"}}`, poll.StatusGood},
		{"deeply nested", "a.b.c.status", `{"a": {"b": {"c": {"status": "healthy"}}}}`, poll.StatusGood},

		{"boolean true", "healthy", `{"healthy": true}`, poll.StatusGood},
		{"boolean false", "healthy", `{"healthy": false}`, poll.StatusCritical},
		{"numeric 1", "status", `{"status": 1}`, poll.StatusGood},
		{"numeric 0", "status", `{"status": 0}`, poll.StatusCritical},
		{"numeric 200", "status", `{"status": 200}`, poll.StatusCritical},
		{"numeric float 0.5", "status", `{"status": 0.5}`, poll.StatusCritical},

		{"uppercase OK", "status", `{"status": "OK"}`, poll.StatusGood},

		{"missing field", "status", `{"other": "value"}`, poll.StatusUnknown},
		{"missing nested", "data.status", `{"data": {"other": "value"}}`, poll.StatusUnknown},
		{"invalid json", "status", `not json`, poll.StatusUnknown},
		{"empty body", "status", ``, poll.StatusUnknown},
		{"array at path", "status", `{"status": ["a", "b"]}`, poll.StatusUnknown},
		{"object at path", "status", `{"status": {"nested": "value"}}`, poll.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JSONFieldExtractor(tt.path)([]byte(tt.body), 200)
			if got != tt.want {
				t.Errorf("JSONFieldExtractor(%q)(%q) = %v, want %v", tt.path, tt.body, got, tt.want)
			}
		})
	}
}

func TestRegexExtractor(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		upMatch string
		body    string
		want    poll.Status
	}{
		{"matches ok", `"status":\s*"(\w+)"`, "ok", `{"status": "ok"}`, poll.StatusGood},
		{"different value", `"status":\s*"(\w+)"`, "ok", `{"status": "down"}`, poll.StatusCritical},
		{"case insensitive", `"status":\s*"(\w+)"`, "OK", `{"status": "ok"}`, poll.StatusGood},
		{"no capture match", `"status":\s*"(\w+)"`, "ok", `no status here`, poll.StatusUnknown},
		{"xml status", `<status>(\w+)</status>`, "healthy", `<status>healthy</status>`, poll.StatusGood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor, err := RegexExtractor(tt.pattern, tt.upMatch)
			if err != nil {
				t.Fatalf("RegexExtractor() error = %v", err)
			}
			got := extractor([]byte(tt.body), 200)
			if got != tt.want {
				t.Errorf("RegexExtractor(%q, %q)(%q) = %v, want %v", tt.pattern, tt.upMatch, tt.body, got, tt.want)
			}
		})
	}
}

func TestRegexExtractor_InvalidPattern(t *testing.T) {
	if _, err := RegexExtractor(`[invalid`, "ok"); err == nil {
		t.Error("RegexExtractor() expected error for invalid pattern, got nil")
	}
}

func TestMustRegexExtractor_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustRegexExtractor() expected panic for invalid pattern")
		}
	}()

	MustRegexExtractor(`[invalid`, "ok")
}

func TestFirstMatch(t *testing.T) {
	fixed := func(s poll.Status) Extractor {
		return func(body []byte, statusCode int) poll.Status { return s }
	}
	unknown := fixed(poll.StatusUnknown)
	good := fixed(poll.StatusGood)
	critical := fixed(poll.StatusCritical)

	tests := []struct {
		name       string
		extractors []Extractor
		want       poll.Status
	}{
		{"first returns good", []Extractor{good, critical}, poll.StatusGood},
		{"first unknown, second good", []Extractor{unknown, good}, poll.StatusGood},
		{"all unknown", []Extractor{unknown, unknown}, poll.StatusUnknown},
		{"first unknown, second critical", []Extractor{unknown, critical}, poll.StatusCritical},
		{"empty extractors", nil, poll.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FirstMatch(tt.extractors...)(nil, 200)
			if got != tt.want {
				t.Errorf("FirstMatch() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContainsExtractor(t *testing.T) {
	tests := []struct {
		name string
		text string
		body string
		want poll.Status
	}{
		{"contains ok", "ok", "status: ok", poll.StatusGood},
		{"does not contain", "healthy", "the service is down", poll.StatusCritical},
		{"case insensitive", "HeAlThY", "The service is HEALTHY", poll.StatusGood},
		{"substring match", "ok", "looking good", poll.StatusGood},
		{"empty body", "ok", "", poll.StatusCritical},
		{"empty search always found", "", "some content", poll.StatusGood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContainsExtractor(tt.text)([]byte(tt.body), 200)
			if got != tt.want {
				t.Errorf("ContainsExtractor(%q)(%q) = %v, want %v", tt.text, tt.body, got, tt.want)
			}
		})
	}
}

func TestDefaultExtractor(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		statusCode int
		want       poll.Status
	}{
		{"json ok with 200", `{"status": "ok"}`, 200, poll.StatusGood},
		{"json ok with 500", `{"status": "ok"}`, 500, poll.StatusGood},
		{"json down with 200", `{"status": "down"}`, 200, poll.StatusCritical},
		{"no json status, 200", `{"other": "field"}`, 200, poll.StatusGood},
		{"no json status, 500", `{"other": "field"}`, 500, poll.StatusCritical},
		{"invalid json, 404", `not json`, 404, poll.StatusWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultExtractor([]byte(tt.body), tt.statusCode)
			if got != tt.want {
				t.Errorf("DefaultExtractor(%q, %d) = %v, want %v", tt.body, tt.statusCode, got, tt.want)
			}
		})
	}
}
