// Package testutil provides testing utilities for the feed client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockPageResponse defines the behavior for one page of a mocked search.
type MockPageResponse struct {
	// StatusCode defaults to 200.
	StatusCode int

	// Agents lists the agent name of each object on the page, in order.
	Agents []string

	// TotalPages is reported as Paging.AantalPaginas; nil is sent as JSON null.
	TotalPages *int

	// Body overrides the generated JSON body when set.
	Body string

	// Delay is applied before responding.
	Delay time.Duration
}

// MockRequest is one request observed by the mock feed.
type MockRequest struct {
	APIKey     string
	SearchPath string
	Page       int
	PageSize   int
	Type       string
	UserAgent  string
}

type pageKey struct {
	searchPath string
	page       int
}

// MockFunda is a configurable mock of the partner feed for testing.
type MockFunda struct {
	server   *httptest.Server
	mu       sync.RWMutex
	apiKey   string
	pages    map[pageKey]MockPageResponse
	failures map[pageKey][]int

	requests []MockRequest
}

// NewMockFunda creates a mock feed that accepts apiKey.
// Requests with any other key receive 401.
func NewMockFunda(apiKey string) *MockFunda {
	mock := &MockFunda{
		apiKey:   apiKey,
		pages:    make(map[pageKey]MockPageResponse),
		failures: make(map[pageKey][]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))

	return mock
}

// URL returns the mock feed base URL (the client appends /{key}/).
func (m *MockFunda) URL() string {
	return m.server.URL + "/feeds/Aanbod.svc/json"
}

// Close shuts down the mock server.
func (m *MockFunda) Close() {
	m.server.Close()
}

// Reset clears recorded requests and queued failures.
func (m *MockFunda) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.failures = make(map[pageKey][]int)
}

// SetPage configures the response for one page of a search.
func (m *MockFunda) SetPage(searchPath string, page int, resp MockPageResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[pageKey{searchPath, page}] = resp
}

// SetSearch configures a complete search: one page per element of agentsPerPage,
// each reporting len(agentsPerPage) total pages.
func (m *MockFunda) SetSearch(searchPath string, agentsPerPage ...[]string) {
	total := len(agentsPerPage)
	for i, agents := range agentsPerPage {
		m.SetPage(searchPath, i+1, MockPageResponse{
			Agents:     agents,
			TotalPages: IntPtr(total),
		})
	}
}

// FailPage queues status codes that page answers with before its configured response.
func (m *MockFunda) FailPage(searchPath string, page int, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pageKey{searchPath, page}
	m.failures[key] = append(m.failures[key], statuses...)
}

// Requests returns a copy of the requests received so far.
func (m *MockFunda) Requests() []MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockFunda) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// RequestedPages returns the page numbers requested for searchPath, in order.
func (m *MockFunda) RequestedPages(searchPath string) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pages []int
	for _, r := range m.requests {
		if r.SearchPath == searchPath {
			pages = append(pages, r.Page)
		}
	}
	return pages
}

func (m *MockFunda) handle(w http.ResponseWriter, r *http.Request) {
	// Path: /feeds/Aanbod.svc/json/{key}/
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	key := ""
	if len(segments) > 0 {
		key = segments[len(segments)-1]
	}

	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("pagesize"))
	req := MockRequest{
		APIKey:     key,
		SearchPath: query.Get("zo"),
		Page:       page,
		PageSize:   pageSize,
		Type:       query.Get("type"),
		UserAgent:  r.Header.Get("User-Agent"),
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	pk := pageKey{req.SearchPath, req.Page}
	var failStatus int
	if queued := m.failures[pk]; len(queued) > 0 {
		failStatus = queued[0]
		m.failures[pk] = queued[1:]
	}
	resp, exists := m.pages[pk]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if key != m.apiKey {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid key"}`))
		return
	}

	if failStatus != 0 {
		w.WriteHeader(failStatus)
		w.Write([]byte(`{"error": "mocked failure"}`))
		return
	}

	if !exists {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "unknown search"}`))
		return
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	body := resp.Body
	if body == "" {
		body = PageBody(req.Page, resp.Agents, resp.TotalPages)
	}

	w.WriteHeader(status)
	w.Write([]byte(body))
}

// PageBody renders a feed page in the upstream JSON format.
func PageBody(page int, agents []string, totalPages *int) string {
	type object struct {
		ID        string `json:"Id"`
		AgentID   int    `json:"MakelaarId"`
		AgentName string `json:"MakelaarNaam"`
		Address   string `json:"Adres"`
	}

	objects := make([]object, 0, len(agents))
	for i, agent := range agents {
		objects = append(objects, object{
			ID:        strconv.Itoa(page) + "-" + strconv.Itoa(i),
			AgentID:   len(agent),
			AgentName: agent,
			Address:   "Teststraat " + strconv.Itoa(i+1),
		})
	}

	data, _ := json.Marshal(map[string]any{
		"Objects": objects,
		"Paging": map[string]any{
			"AantalPaginas": totalPages,
			"HuidigePagina": page,
		},
		"TotaalAantalObjecten": len(agents),
	})
	return string(data)
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
