// Package httpcheck monitors generic HTTP health endpoints.
//
// Each [Node] requests one URL on its interval and runs the response through
// an [Extractor] to decide its status. Built-in extractors cover status codes,
// JSON fields, regular expressions and plain-text matches, and compose with
// [FirstMatch]:
//
//	check, err := httpcheck.New("payments", "https://payments.internal/health",
//	    httpcheck.WithLabels("env", "prod"),
//	    httpcheck.WithTimeout(5*time.Second),
//	    httpcheck.WithExtractor(httpcheck.JSONFieldExtractor("data.status")),
//	)
package httpcheck
