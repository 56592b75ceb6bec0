// Package views derives the read-only presentation sheets from the
// ledger. Views are regenerated in full after every ledger update; the
// operator-editable sale_price column is carried over from the previous
// version of the same view by product code.
package views

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/nfeledger/internal/ledger"
)

// SalePrices maps product code to the operator-entered sale price read
// from the previous version of a view sheet.
type SalePrices map[string]decimal.Decimal

var viewColumns = []string{
	"product_code",
	"product_name",
	"current_price",
	"previous_price",
	"last_purchase",
	"category",
	"sale_price",
}

const displayDateLayout = "2006-01-02"

// Flat projects the whole-ledger product view.
func Flat(l *ledger.Ledger, prev SalePrices) ledger.Sheet {
	return project(ledger.SheetProducts, l.Records(), prev)
}

// ByCategory projects the view for one category.
func ByCategory(l *ledger.Ledger, category string, prev SalePrices) ledger.Sheet {
	var records []ledger.ProductRecord
	for _, rec := range l.Records() {
		if rec.Category == category {
			records = append(records, rec)
		}
	}
	return project(CategorySheetName(category), records, prev)
}

// CategorySheetName returns the workbook sheet name for a category view.
func CategorySheetName(category string) string {
	return ledger.CategorySheetPrefix + category
}

// project builds a sheet from already name-sorted records. Rows are
// deduplicated by product code (defensive; the ledger is keyed by code).
// Products absent from the ledger simply do not reappear: views reflect
// current ledger membership only.
func project(name string, records []ledger.ProductRecord, prev SalePrices) ledger.Sheet {
	rows := make([][]interface{}, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if _, dup := seen[rec.ProductCode]; dup {
			continue
		}
		seen[rec.ProductCode] = struct{}{}

		salePrice := ""
		if price, ok := prev[rec.ProductCode]; ok {
			salePrice = price.String()
		}

		rows = append(rows, []interface{}{
			rec.ProductCode,
			rec.ProductName,
			rec.CurrentPrice.String(),
			rec.PreviousPrice.String(),
			formatDisplayDate(rec.LastPurchase),
			rec.Category,
			salePrice,
		})
	}

	return ledger.Sheet{
		Name:    name,
		Columns: viewColumns,
		Rows:    rows,
	}
}

// formatDisplayDate renders the purchase date without a time-of-day
// component.
func formatDisplayDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(displayDateLayout)
}
