// Package scrape turns search criteria into listing queries, walks the
// paginated guest API through the fetch engine and parses the returned HTML
// into structured job postings.
package scrape

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Default guest API endpoints. Overridable in Config for testing.
const (
	DefaultListURL   = "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search"
	DefaultDetailURL = "https://www.linkedin.com/jobs-guest/jobs/api/jobPosting"
)

// Filter describes one search filter: the query parameter it maps to and the
// human-readable options it accepts.
type Filter struct {
	// Param is the query parameter name the API expects.
	Param string

	// Options maps display labels to API values. An empty value means the
	// option is a no-op (e.g. "Any time") and is dropped from the query.
	Options map[string]string

	// AllowMultiple permits selecting several options, joined with commas.
	AllowMultiple bool
}

// Filters are the supported search filters, keyed by criteria name.
var Filters = map[string]Filter{
	"date_posted": {
		Param: "f_TPR",
		Options: map[string]string{
			"Any time":   "",
			"Past month": "r2592000",
			"Past week":  "r604800",
			"Past day":   "r86400",
		},
	},
	"experience_level": {
		Param: "f_E",
		Options: map[string]string{
			"Internship":       "1",
			"Entry level":      "2",
			"Associate":        "3",
			"Mid-Senior level": "4",
			"Director":         "5",
			"Executive":        "6",
		},
		AllowMultiple: true,
	},
	"job_type": {
		Param: "f_JT",
		Options: map[string]string{
			"Full-time":  "F",
			"Part-time":  "P",
			"Contract":   "C",
			"Temporary":  "T",
			"Volunteer":  "V",
			"Internship": "I",
			"Other":      "O",
		},
		AllowMultiple: true,
	},
	"remote": {
		Param: "f_WT",
		Options: map[string]string{
			"On-site": "1",
			"Remote":  "2",
			"Hybrid":  "3",
		},
		AllowMultiple: true,
	},
}

// FilterNames returns the filter keys in stable order, for CLI flag setup.
func FilterNames() []string {
	names := make([]string, 0, len(Filters))
	for name := range Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Criteria is a job search request.
type Criteria struct {
	// Keywords is the job title or search terms.
	Keywords string

	// Location is the geographical area to search in.
	Location string

	// Filters maps filter names (see Filters) to selected option labels.
	// Unknown names and unknown labels are ignored.
	Filters map[string][]string
}

// Query converts the criteria into query parameters for the listing page
// starting at the given result offset.
func (c Criteria) Query(start int) url.Values {
	params := url.Values{}
	if c.Keywords != "" {
		params.Set("keywords", c.Keywords)
	}
	if c.Location != "" {
		params.Set("location", c.Location)
	}
	params.Set("start", strconv.Itoa(start))

	for name, labels := range c.Filters {
		filter, ok := Filters[name]
		if !ok {
			continue
		}
		var values []string
		for _, label := range labels {
			if v, ok := filter.Options[label]; ok && v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		if !filter.AllowMultiple {
			values = values[:1]
		}
		params.Set(filter.Param, strings.Join(values, ","))
	}
	return params
}
