package source

import (
	"context"
	"fmt"
)

// Record is a raw catalog record from the ERP source API. Fields the mapper
// does not understand travel along in Raw for error reporting.
type Record struct {
	ExternalID         string                 `json:"id"`
	SKU                string                 `json:"sku"`
	Name               string                 `json:"name"`
	Description        string                 `json:"description,omitempty"`
	CategoryExternalID string                 `json:"category_id,omitempty"`
	BrandExternalID    string                 `json:"brand_id,omitempty"`
	MaterialExternalID string                 `json:"material_id,omitempty"`
	Cost               float64                `json:"cost"`
	StockQuantity      int                    `json:"stock_quantity"`
	UnitsPerPack       int                    `json:"units_per_pack,omitempty"`
	Raw                map[string]interface{} `json:"-"`
}

// Constraint is one upstream query filter, wire-encoded as
// ["field", "op", value].
type Constraint [3]interface{}

// Where builds a constraint
func Where(field, op string, value interface{}) Constraint {
	return Constraint{field, op, value}
}

// Query is the JSON-encoded list of constraints the source API accepts
type Query []Constraint

// PageResult is one page of the source API response. Remaining is the
// server's count of records left after this page.
type PageResult struct {
	Results   []Record `json:"results"`
	Remaining int      `json:"remaining"`
}

// FetchOptions bounds a FetchAll call
type FetchOptions struct {
	// Cap truncates the accumulated result to exactly Cap records
	Cap int
	// PageSize overrides the configured page size
	PageSize int
}

// Resources exposed by the source API. Products require the bearer
// credential; the reference collections are public.
const (
	ResourceProducts   = "products"
	ResourceCategories = "categories"
	ResourceBrands     = "brands"
	ResourceMaterials  = "materials"
)

// Client fetches catalog records from the ERP source API
type Client interface {
	// FetchAll eagerly accumulates pages of a resource until the server
	// reports zero remaining or the accumulated count reaches opts.Cap
	FetchAll(ctx context.Context, resource string, query Query, opts FetchOptions) ([]Record, error)

	// FetchPage fetches a single page at the given offset
	FetchPage(ctx context.Context, resource string, query Query, offset, limit int) (*PageResult, error)

	// TestConnection probes the source with a one-record fetch and maps
	// any failure to false
	TestConnection(ctx context.Context) bool
}

// TimeoutError indicates the source did not answer within the configured
// timeout. It is distinguished from APIError so run errors can be
// classified as network_error with the right message.
type TimeoutError struct {
	Operation string
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("source API timeout during %s: %v", e.Operation, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// APIError indicates a non-2xx response from the source API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("source API error (status %d): %s", e.StatusCode, e.Body)
}
