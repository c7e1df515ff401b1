package scrape

import (
	"reflect"
	"testing"
)

func TestCriteria_Query(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		start    int
		expected map[string]string
	}{
		{
			name:     "keywords_location_start",
			criteria: Criteria{Keywords: "Go Developer", Location: "Berlin, Germany"},
			start:    20,
			expected: map[string]string{
				"keywords": "Go Developer",
				"location": "Berlin, Germany",
				"start":    "20",
			},
		},
		{
			name: "single_filter",
			criteria: Criteria{
				Keywords: "SRE",
				Filters:  map[string][]string{"date_posted": {"Past week"}},
			},
			start: 0,
			expected: map[string]string{
				"keywords": "SRE",
				"start":    "0",
				"f_TPR":    "r604800",
			},
		},
		{
			name: "multi_value_filter",
			criteria: Criteria{
				Keywords: "SRE",
				Filters:  map[string][]string{"job_type": {"Full-time", "Contract"}},
			},
			start: 0,
			expected: map[string]string{
				"keywords": "SRE",
				"start":    "0",
				"f_JT":     "F,C",
			},
		},
		{
			name: "single_value_filter_keeps_first",
			criteria: Criteria{
				Keywords: "SRE",
				Filters:  map[string][]string{"date_posted": {"Past week", "Past day"}},
			},
			start: 0,
			expected: map[string]string{
				"keywords": "SRE",
				"start":    "0",
				"f_TPR":    "r604800",
			},
		},
		{
			name: "noop_option_dropped",
			criteria: Criteria{
				Keywords: "SRE",
				Filters:  map[string][]string{"date_posted": {"Any time"}},
			},
			start: 0,
			expected: map[string]string{
				"keywords": "SRE",
				"start":    "0",
			},
		},
		{
			name: "unknown_filter_and_label_ignored",
			criteria: Criteria{
				Keywords: "SRE",
				Filters: map[string][]string{
					"salary": {"High"},
					"remote": {"Telecommute"},
				},
			},
			start: 0,
			expected: map[string]string{
				"keywords": "SRE",
				"start":    "0",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := tt.criteria.Query(tt.start)

			got := map[string]string{}
			for key := range params {
				got[key] = params.Get(key)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Query() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFilterNames(t *testing.T) {
	names := FilterNames()

	if len(names) != len(Filters) {
		t.Fatalf("FilterNames returned %d names, want %d", len(names), len(Filters))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("FilterNames not sorted: %q before %q", names[i-1], names[i])
		}
	}
}
