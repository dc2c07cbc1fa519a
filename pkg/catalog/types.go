package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// timestampLayouts are tried in order; the API omits the zone on most dates.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp decodes the catalog's date strings, with or without a time zone.
// Zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", raw)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// envelope is the response wrapper shared by every catalog endpoint.
type envelope[T any] struct {
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
	TotalItems int      `json:"totalItems"`
	Results    []T      `json:"results"`
}

// Page is one slice of a paginated collection.
type Page[T any] struct {
	// Items holds at most the requested limit of results.
	Items []T

	// TotalCount is the size of the whole collection, stable within a sync run.
	TotalCount int
}

// Rarity is a card rarity lookup entry.
type Rarity struct {
	RarityID    int64  `json:"rarityId"`
	DisplayText string `json:"displayText"`
	DBValue     string `json:"dbValue"`
}

// Printing is a printing/edition lookup entry (e.g. "1st Edition").
type Printing struct {
	PrintingID   int64     `json:"printingId"`
	Name         string    `json:"name"`
	DisplayOrder int       `json:"displayOrder"`
	ModifiedOn   Timestamp `json:"modifiedOn"`
}

// Condition is a card condition lookup entry (e.g. "Near Mint").
type Condition struct {
	ConditionID  int64  `json:"conditionId"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
	DisplayOrder int    `json:"displayOrder"`
}

// CardSet is a published card set, called a group by the remote API.
type CardSet struct {
	GroupID        int64     `json:"groupId"`
	Name           string    `json:"name"`
	Abbreviation   string    `json:"abbreviation"`
	IsSupplemental bool      `json:"isSupplemental"`
	PublishedOn    Timestamp `json:"publishedOn"`
	ModifiedOn     Timestamp `json:"modifiedOn"`
	CategoryID     int64     `json:"categoryId"`
}

// ExtendedData is a free-form attribute attached to a product.
type ExtendedData struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Value       string `json:"value"`
}

// Sku is a sellable variant of a product (printing x condition x language).
type Sku struct {
	SkuID       int64 `json:"skuId"`
	ProductID   int64 `json:"productId"`
	LanguageID  int64 `json:"languageId"`
	PrintingID  int64 `json:"printingId"`
	ConditionID int64 `json:"conditionId"`
}

// Product is a single card in the catalog.
type Product struct {
	ProductID    int64          `json:"productId"`
	Name         string         `json:"name"`
	CleanName    string         `json:"cleanName"`
	ImageURL     string         `json:"imageUrl"`
	CategoryID   int64          `json:"categoryId"`
	GroupID      int64          `json:"groupId"`
	URL          string         `json:"url"`
	ModifiedOn   Timestamp      `json:"modifiedOn"`
	ExtendedData []ExtendedData `json:"extendedData"`
	Skus         []Sku          `json:"skus"`
}

// Extended returns the value of the named extended data field, or "".
func (p Product) Extended(name string) string {
	for _, d := range p.ExtendedData {
		if d.Name == name {
			return d.Value
		}
	}
	return ""
}

// failure reports whether the envelope signals an unsuccessful request.
// A page with no results is reported by some endpoints as success=false with
// an empty error list, which is not treated as a failure.
func (e *envelope[T]) failure() (bool, []string) {
	return !e.Success && len(e.Errors) > 0, e.Errors
}
