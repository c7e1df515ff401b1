// Package testutil provides testing utilities for the job scraper.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBoard is a configurable mock job board server for testing. It serves
// listing pages under /search and detail pages under /jobs/{id}.
type MockBoard struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockBoard creates a new mock job board server.
func NewMockBoard() *MockBoard {
	mock := &MockBoard{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBoard) URL() string {
	return m.server.URL
}

// ListURL returns the listing endpoint, for scrape.Config.ListURL.
func (m *MockBoard) ListURL() string {
	return m.server.URL + "/search"
}

// DetailURL returns the detail endpoint base, for scrape.Config.DetailURL.
func (m *MockBoard) DetailURL() string {
	return m.server.URL + "/jobs"
}

// Close shuts down the mock server.
func (m *MockBoard) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBoard) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBoard) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// SetHandler sets a custom handler for a specific path.
func (m *MockBoard) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockBoard) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetListingPages serves listing HTML keyed by the start offset. Offsets not
// in the map return an empty listing.
func (m *MockBoard) SetListingPages(pages map[int]string) {
	m.SetHandler("/search", func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		body, ok := pages[start]
		if !ok {
			body = "<html><body></body></html>"
		}
		w.Write([]byte(body))
	})
}

// SetJobDetail configures the detail page response for a job ID.
func (m *MockBoard) SetJobDetail(id string, resp MockResponse) {
	m.SetResponse("/jobs/"+id, resp)
}

// JobCard is a listing entry for ListingPage.
type JobCard struct {
	ID      string
	Title   string
	Company string
}

// ListingPage renders a listing page containing the given job cards.
func ListingPage(cards []JobCard) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body><ul>")
	for _, card := range cards {
		fmt.Fprintf(&b, `<li><div class="base-card base-search-card" data-entity-urn="urn:li:jobPosting:%s">`, card.ID)
		fmt.Fprintf(&b, `<h3 class="base-search-card__title">%s</h3>`, card.Title)
		fmt.Fprintf(&b, `<h4 class="base-search-card__subtitle">%s</h4></div></li>`, card.Company)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

// DetailSpec describes a detail page for DetailPage.
type DetailSpec struct {
	Location    string
	PostedDate  string
	Description string
	ApplyURL    string
	Salary      string
}

// DetailPage renders a job detail page.
func DetailPage(spec DetailSpec) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body><section class="top-card-layout">`)
	fmt.Fprintf(&b, `<span class="topcard__flavor topcard__flavor--bullet">%s</span>`, spec.Location)
	if spec.PostedDate != "" {
		fmt.Fprintf(&b, `<span class="posted-time-ago__text">%s</span>`, spec.PostedDate)
	}
	b.WriteString("</section>")
	if spec.ApplyURL != "" {
		fmt.Fprintf(&b, `<code id="applyUrl">"%s"</code>`, spec.ApplyURL)
	}
	if spec.Salary != "" {
		fmt.Fprintf(&b, `<div class="salary compensation__salary">%s</div>`, spec.Salary)
	}
	fmt.Fprintf(&b, `<div class="show-more-less-html__markup"><p>%s</p></div>`, spec.Description)
	b.WriteString("</body></html>")
	return b.String()
}
