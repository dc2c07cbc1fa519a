// Package testutil provides a fake catalog API server for tests.
package testutil

import (
	"encoding/json"
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

// MockCatalog is a configurable fake of the remote catalog API. By default it
// serves a generated catalog of Sets card sets and Products products, each
// product carrying SkusPerProduct SKUs.
type MockCatalog struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	failures map[failureKey]int

	categoryID     int
	sets           int
	products       int
	skusPerProduct int

	requestCount  int
	pathCounts    map[string]int
	lastUserAgent string
}

type failureKey struct {
	path   string
	offset int
}

// MockOption customizes the generated catalog.
type MockOption func(*MockCatalog)

// WithCatalogSize sets how many sets and products the fake serves.
func WithCatalogSize(sets, products int) MockOption {
	return func(m *MockCatalog) {
		m.sets = sets
		m.products = products
	}
}

// WithSkusPerProduct sets how many SKUs every product carries.
func WithSkusPerProduct(n int) MockOption {
	return func(m *MockCatalog) { m.skusPerProduct = n }
}

// WithCategory sets the category id the fake answers for.
func WithCategory(id int) MockOption {
	return func(m *MockCatalog) { m.categoryID = id }
}

// NewMockCatalog creates and starts a new fake catalog server.
func NewMockCatalog(opts ...MockOption) *MockCatalog {
	mock := &MockCatalog{
		handlers:       make(map[string]func(w http.ResponseWriter, r *http.Request)),
		failures:       make(map[failureKey]int),
		pathCounts:     make(map[string]int),
		categoryID:     2,
		sets:           25,
		products:       40,
		skusPerProduct: 2,
	}
	for _, opt := range opts {
		opt(mock)
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastUserAgent = r.UserAgent()
		status, failing := mock.failures[failureKey{r.URL.Path, queryInt(r, "offset", 0)}]
		if !failing {
			status, failing = mock.failures[failureKey{r.URL.Path, -1}]
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if failing {
			http.Error(w, `{"success":false,"errors":["injected failure"]}`, status)
			return
		}
		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears all tracking counters and injected failures.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.failures = make(map[failureKey]int)
	m.lastUserAgent = ""
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCatalog) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockCatalog) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// FailAt makes requests to path with the given offset answer with status.
// An offset of -1 fails every request to path.
func (m *MockCatalog) FailAt(path string, offset, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[failureKey{path, offset}] = status
}

// RequestCount returns the number of requests made to the server.
func (m *MockCatalog) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made to path.
func (m *MockCatalog) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockCatalog) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent
}

// CategoryPath returns the path of a per-category resource.
func (m *MockCatalog) CategoryPath(resource string) string {
	return fmt.Sprintf("/catalog/categories/%d/%s", m.categoryID, resource)
}

// ProductsPath is the path of the product listing.
const ProductsPath = "/catalog/products"

func (m *MockCatalog) defaultHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case m.CategoryPath("rarities"):
		writeEnvelope(w, 3, []map[string]any{
			{"rarityId": 1, "displayText": "Common", "dbValue": "C"},
			{"rarityId": 2, "displayText": "Uncommon", "dbValue": "U"},
			{"rarityId": 3, "displayText": "Rare", "dbValue": "R"},
		})
	case m.CategoryPath("printings"):
		writeEnvelope(w, 2, []map[string]any{
			{"printingId": 1, "name": "Normal", "displayOrder": 1, "modifiedOn": "2019-08-14T18:18:51.563"},
			{"printingId": 2, "name": "Foil", "displayOrder": 2, "modifiedOn": "2019-08-14T18:18:51.563"},
		})
	case m.CategoryPath("conditions"):
		writeEnvelope(w, 2, []map[string]any{
			{"conditionId": 1, "name": "Near Mint", "abbreviation": "NM", "displayOrder": 1},
			{"conditionId": 2, "name": "Lightly Played", "abbreviation": "LP", "displayOrder": 2},
		})
	case m.CategoryPath("groups"):
		from, to := window(r, m.sets)
		items := make([]map[string]any, 0, to-from)
		for i := from; i < to; i++ {
			items = append(items, SetFixture(i, m.categoryID))
		}
		writeEnvelope(w, m.sets, items)
	case ProductsPath:
		if queryInt(r, "categoryId", 0) != m.categoryID {
			http.Error(w, `{"success":false,"errors":["unknown category"]}`, http.StatusBadRequest)
			return
		}
		from, to := window(r, m.products)
		items := make([]map[string]any, 0, to-from)
		for i := from; i < to; i++ {
			items = append(items, ProductFixture(i, m.categoryID, m.skusPerProduct))
		}
		writeEnvelope(w, m.products, items)
	default:
		http.Error(w, `{"success":false,"errors":["not found"]}`, http.StatusNotFound)
	}
}

// SetFixture returns the JSON shape of the i-th generated card set.
func SetFixture(i, categoryID int) map[string]any {
	return map[string]any{
		"groupId":        1000 + i,
		"name":           fmt.Sprintf("Set %d", i),
		"abbreviation":   fmt.Sprintf("S%02d", i),
		"isSupplemental": i%5 == 0,
		"publishedOn":    "2020-01-01T00:00:00",
		"modifiedOn":     "2021-06-01T12:30:00.25",
		"categoryId":     categoryID,
	}
}

// ProductFixture returns the JSON shape of the i-th generated product.
func ProductFixture(i, categoryID, skus int) map[string]any {
	productID := 50000 + i
	skuList := make([]map[string]any, 0, skus)
	for s := 0; s < skus; s++ {
		skuList = append(skuList, map[string]any{
			"skuId":       productID*10 + s,
			"productId":   productID,
			"languageId":  1,
			"printingId":  1 + s%2,
			"conditionId": 1,
		})
	}
	return map[string]any{
		"productId":  productID,
		"name":       fmt.Sprintf("Card %d", i),
		"cleanName":  fmt.Sprintf("Card %d", i),
		"imageUrl":   fmt.Sprintf("https://example.test/img/%d.jpg", productID),
		"categoryId": categoryID,
		"groupId":    1000 + i%7,
		"url":        fmt.Sprintf("https://example.test/product/%d", productID),
		"modifiedOn": "2022-03-04T05:06:07",
		"extendedData": []map[string]any{
			{"name": "Rarity", "displayName": "Rarity", "value": "C"},
			{"name": "Number", "displayName": "Card Number", "value": strconv.Itoa(i + 1)},
		},
		"skus": skuList,
	}
}

func window(r *http.Request, total int) (int, int) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 100)
	if offset > total {
		offset = total
	}
	return offset, min(offset+limit, total)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return def
	}
	return v
}

func writeEnvelope(w http.ResponseWriter, total int, results any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":    true,
		"errors":     []string{},
		"totalItems": total,
		"results":    results,
	})
}
