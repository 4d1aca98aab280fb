package httpcheck

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"text/template"
)

// NewGrid creates one check per combination of dimension values.
//
// urlTemplate uses text/template syntax with dimension keys as variables;
// values are URL-encoded before interpolation and a key missing from the
// dimensions is an error. Each check is named "baseName (v1/v2)" with values
// ordered by sorted key, and carries its dimension values as labels. opts
// apply to every check; labels set there override dimension labels.
//
//	checks, err := httpcheck.NewGrid("API Health",
//	    "https://api.example.com/health?region={{.region}}",
//	    map[string][]string{"region": {"us-east", "eu-west"}},
//	    httpcheck.WithLabels("team", "platform"),
//	)
func NewGrid(baseName, urlTemplate string, dims map[string][]string, opts ...Option) ([]*Node, error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}
	if urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if err := validateDimensions(dims); err != nil {
		return nil, err
	}

	tmpl, err := template.New("url").Option("missingkey=error").Parse(urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	combinations := cartesianProduct(dims)
	nodes := make([]*Node, 0, len(combinations))
	for _, combo := range combinations {
		var buf strings.Builder
		if err := tmpl.Execute(&buf, urlEncodeMap(combo)); err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		name := gridName(baseName, combo)
		nodeOpts := append([]Option{WithLabels(flattenMap(combo)...)}, opts...)
		n, err := New(name, buf.String(), nodeOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create check '%s': %w", name, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func validateDimensions(dims map[string][]string) error {
	if len(dims) == 0 {
		return errors.New("at least one dimension required")
	}
	for _, k := range slices.Sorted(maps.Keys(dims)) {
		vals := dims[k]
		if len(vals) == 0 {
			return fmt.Errorf("dimension '%s' has no values", k)
		}
		for i, v := range vals {
			if v == "" {
				return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
			}
		}
	}
	return nil
}

// cartesianProduct generates every combination of dimension values. Keys are
// iterated in sorted order and values keep their slice order, so the output
// is deterministic.
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}
	keys := slices.Sorted(maps.Keys(dims))
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	var result []map[string]string
	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		// odometer increment, rightmost first
		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

func urlEncodeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.QueryEscape(v)
	}
	return result
}

func gridName(baseName string, combo map[string]string) string {
	keys := slices.Sorted(maps.Keys(combo))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", baseName, strings.Join(parts, "/"))
}

// flattenMap converts a map to sorted key-value pairs.
func flattenMap(m map[string]string) []string {
	result := make([]string, 0, len(m)*2)
	for _, k := range slices.Sorted(maps.Keys(m)) {
		result = append(result, k, m[k])
	}
	return result
}
