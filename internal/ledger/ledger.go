// Package ledger holds the per-product purchase aggregate and its
// spreadsheet persistence.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ProductRecord is one row of the purchase ledger, keyed by ProductCode.
// CurrentPrice and PreviousPrice follow purchase-date order, never
// processing order. TotalQty accumulates across all non-duplicate
// invoices, including ones that arrive out of date order.
type ProductRecord struct {
	ProductCode    string
	ProductName    string
	TotalQty       decimal.Decimal
	CurrentPrice   decimal.Decimal
	PreviousPrice  decimal.Decimal
	LastPurchase   time.Time // naive; zero means the invoice carried no parsable date
	LastInvoiceKey string
	Category       string
}

// Ledger is the in-memory purchase table plus the set of invoice keys
// already merged. Not safe for concurrent use; ingestion is serialized.
type Ledger struct {
	products  map[string]*ProductRecord
	processed map[string]struct{}
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		products:  make(map[string]*ProductRecord),
		processed: make(map[string]struct{}),
	}
}

// Product returns the record for a code, or nil when unseen.
func (l *Ledger) Product(code string) *ProductRecord {
	return l.products[code]
}

// Put inserts or replaces a record.
func (l *Ledger) Put(rec *ProductRecord) {
	l.products[rec.ProductCode] = rec
}

// Len returns the number of distinct products.
func (l *Ledger) Len() int {
	return len(l.products)
}

// Records returns copies of all records sorted by product name, ties
// broken by product code for determinism.
func (l *Ledger) Records() []ProductRecord {
	out := make([]ProductRecord, 0, len(l.products))
	for _, rec := range l.products {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductName != out[j].ProductName {
			return out[i].ProductName < out[j].ProductName
		}
		return out[i].ProductCode < out[j].ProductCode
	})
	return out
}

// Categories returns the distinct categories present, sorted.
func (l *Ledger) Categories() []string {
	seen := make(map[string]struct{})
	for _, rec := range l.products {
		if rec.Category != "" {
			seen[rec.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// IsProcessed reports whether an invoice key has already been merged.
func (l *Ledger) IsProcessed(invoiceKey string) bool {
	_, ok := l.processed[invoiceKey]
	return ok
}

// MarkProcessed records an invoice key as merged.
func (l *Ledger) MarkProcessed(invoiceKey string) {
	if invoiceKey == "" {
		return
	}
	l.processed[invoiceKey] = struct{}{}
}

// ProcessedKeys returns the merged invoice keys, sorted.
func (l *Ledger) ProcessedKeys() []string {
	out := make([]string, 0, len(l.processed))
	for key := range l.processed {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Sheet is a generic tabular payload handed to the Store for persistence.
// The View Projector produces these for the derived sheets.
type Sheet struct {
	Name    string
	Columns []string
	Rows    [][]interface{}
}
