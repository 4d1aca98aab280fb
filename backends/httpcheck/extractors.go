package httpcheck

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/jpalmerr/statusboard/poll"
)

// Extractor derives a status from an HTTP response. Extractors are pure
// functions: the same inputs always produce the same output.
//
// Extractors run inside a panic recovery boundary. A panicking extractor
// marks the check Critical with an error carrying a correlation id; the stack
// is logged server-side.
type Extractor func(body []byte, statusCode int) poll.Status

// HTTPStatusExtractor determines status from the HTTP status code alone:
// 2xx is Good, 4xx is Warning, anything else is Critical.
var HTTPStatusExtractor Extractor = func(body []byte, statusCode int) poll.Status {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return poll.StatusGood
	case statusCode >= 400 && statusCode < 500:
		return poll.StatusWarning
	default:
		return poll.StatusCritical
	}
}

// JSONFieldExtractor returns an [Extractor] that reads a JSON field using dot
// notation to navigate nested objects, e.g. "data.health.status".
//
// The extracted value is mapped using common health check conventions:
//   - Good: "ok", "healthy", "up", "active", "running", "pass", "passed", "true", "green", "none", "operational"
//   - Warning: "degraded", "warning", "partial", "yellow", "amber"
//   - Maintenance: "maintenance", "maint", "drain"
//   - Critical: any other value
//   - Unknown: the body is not JSON or the field is missing
//
// Boolean and numeric values are converted: true/1 → "true", false/0 → "false".
func JSONFieldExtractor(path string) Extractor {
	parts := strings.Split(path, ".")

	return func(body []byte, statusCode int) poll.Status {
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			return poll.StatusUnknown
		}

		value := extractJSONPath(data, parts)
		if value == "" {
			return poll.StatusUnknown
		}
		return mapStringToStatus(strings.ToLower(value))
	}
}

// extractJSONPath walks a JSON structure using dot notation parts.
func extractJSONPath(data any, parts []string) string {
	current := data
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = obj[part]
		if !ok {
			return ""
		}
	}

	switch v := current.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		switch v {
		case 0:
			return "false"
		case 1:
			return "true"
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func mapStringToStatus(s string) poll.Status {
	switch s {
	case "ok", "healthy", "up", "active", "running", "pass", "passed", "true", "green", "none", "operational":
		return poll.StatusGood
	case "degraded", "warning", "partial", "yellow", "amber":
		return poll.StatusWarning
	case "maintenance", "maint", "drain":
		return poll.StatusMaintenance
	default:
		return poll.StatusCritical
	}
}

// RegexExtractor returns an [Extractor] that matches the body against
// pattern. The first capture group is compared case-insensitively with
// upMatch: equal is Good, different is Critical, no match is Unknown.
//
// Returns an error if the pattern is invalid.
func RegexExtractor(pattern string, upMatch string) (Extractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	return func(body []byte, statusCode int) poll.Status {
		matches := re.FindSubmatch(body)
		if len(matches) < 2 {
			return poll.StatusUnknown
		}
		if strings.EqualFold(string(matches[1]), upMatch) {
			return poll.StatusGood
		}
		return poll.StatusCritical
	}, nil
}

// MustRegexExtractor is like [RegexExtractor] but panics if the pattern is
// invalid.
func MustRegexExtractor(pattern string, upMatch string) Extractor {
	extractor, err := RegexExtractor(pattern, upMatch)
	if err != nil {
		panic("httpcheck: invalid regex pattern: " + err.Error())
	}
	return extractor
}

// FirstMatch tries extractors in order and returns the first result that is
// not Unknown.
func FirstMatch(extractors ...Extractor) Extractor {
	return func(body []byte, statusCode int) poll.Status {
		for _, extractor := range extractors {
			if status := extractor(body, statusCode); status != poll.StatusUnknown {
				return status
			}
		}
		return poll.StatusUnknown
	}
}

// ContainsExtractor returns Good when the body contains text
// (case-insensitive) and Critical otherwise.
func ContainsExtractor(text string) Extractor {
	lower := strings.ToLower(text)
	return func(body []byte, statusCode int) poll.Status {
		if strings.Contains(strings.ToLower(string(body)), lower) {
			return poll.StatusGood
		}
		return poll.StatusCritical
	}
}

// DefaultExtractor tries the JSON "status" field and falls back to the HTTP
// status code.
var DefaultExtractor = FirstMatch(
	JSONFieldExtractor("status"),
	HTTPStatusExtractor,
)
