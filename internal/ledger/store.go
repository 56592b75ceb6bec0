package ledger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// Workbook sheet names. The purchases sheet is the ledger of record, the
// processed sheet is the idempotence set, everything else is a projected
// view regenerated on each save.
const (
	SheetPurchases = "Purchases"
	SheetProcessed = "ProcessedInvoices"
	SheetProducts  = "Products"

	// CategorySheetPrefix prefixes the per-category view sheets.
	CategorySheetPrefix = "Category "
)

// Ledger sheet column order. Loading is header-driven so older workbooks
// missing trailing columns are healed with zero defaults.
var purchaseColumns = []string{
	"product_code",
	"product_name",
	"total_quantity",
	"current_price",
	"previous_price",
	"last_purchase",
	"last_invoice_key",
	"category",
}

const (
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
)

// Store persists the ledger and its views in a single xlsx workbook.
// The workbook is a shared exclusive resource; callers must serialize
// access externally.
type Store struct {
	path string
	log  *logrus.Logger
}

// NewStore creates a store for the given workbook path.
func NewStore(path string, log *logrus.Logger) *Store {
	return &Store{path: path, log: log}
}

// Path returns the workbook path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted ledger. A missing workbook yields an empty
// ledger; a workbook missing a sheet or column is repaired with defaults
// rather than failing.
func (s *Store) Load() (*Ledger, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		s.log.WithField("workbook", s.path).Info("workbook not found, starting empty ledger")
		return New(), nil
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", s.path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.log.WithError(closeErr).Warn("failed to close workbook after load")
		}
	}()

	l := New()

	rows, err := f.GetRows(SheetPurchases)
	if err != nil {
		// Sheet absent from an older workbook: start with an empty table.
		s.log.WithField("sheet", SheetPurchases).Warn("ledger sheet missing, treating as empty")
		rows = nil
	}
	if len(rows) > 0 {
		index := columnIndex(rows[0])
		for _, row := range rows[1:] {
			rec := recordFromRow(row, index)
			if rec.ProductCode == "" {
				continue
			}
			l.Put(rec)
		}
	}

	keyRows, err := f.GetRows(SheetProcessed)
	if err != nil {
		s.log.WithField("sheet", SheetProcessed).Warn("processed-invoices sheet missing, treating as empty")
		keyRows = nil
	}
	for i, row := range keyRows {
		if i == 0 || len(row) == 0 {
			continue
		}
		l.MarkProcessed(strings.TrimSpace(row[0]))
	}

	return l, nil
}

// Save rewrites the ledger sheets and the supplied view sheets in one
// workbook write. Existing view sheets with the same names are replaced.
// Uses the write-temp-then-rename pattern so a failed save never leaves a
// truncated workbook behind.
func (s *Store) Save(l *Ledger, views []Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheet(f, Sheet{
		Name:    SheetPurchases,
		Columns: purchaseColumns,
		Rows:    purchaseRows(l),
	}); err != nil {
		return err
	}

	keyRows := make([][]interface{}, 0, len(l.processed))
	for _, key := range l.ProcessedKeys() {
		keyRows = append(keyRows, []interface{}{key})
	}
	if err := writeSheet(f, Sheet{
		Name:    SheetProcessed,
		Columns: []string{"invoice_key"},
		Rows:    keyRows,
	}); err != nil {
		return err
	}

	for _, view := range views {
		if err := writeSheet(f, view); err != nil {
			return err
		}
	}

	// Drop the default sheet created by excelize.
	if idx, err := f.GetSheetIndex("Sheet1"); err == nil && idx >= 0 {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("failed to remove default sheet: %w", err)
		}
	}

	// excelize validates the extension on save, so the temp file must
	// keep a workbook suffix.
	tmp := s.path + ".tmp.xlsx"
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("failed to write workbook %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace workbook %s: %w", s.path, err)
	}

	s.log.WithFields(logrus.Fields{
		"workbook": s.path,
		"products": l.Len(),
		"views":    len(views),
	}).Info("workbook saved")
	return nil
}

// SalePrices reads the operator-editable sale_price column of an existing
// view sheet, keyed by product code. Missing workbook, sheet or column
// all yield an empty map: there is simply nothing to carry over.
func (s *Store) SalePrices(sheetName string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal)

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return prices, nil
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", s.path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.log.WithError(closeErr).Warn("failed to close workbook after reading sale prices")
		}
	}()

	rows, err := f.GetRows(sheetName)
	if err != nil || len(rows) == 0 {
		return prices, nil
	}

	index := columnIndex(rows[0])
	codeCol, codeOK := index["product_code"]
	priceCol, priceOK := index["sale_price"]
	if !codeOK || !priceOK {
		return prices, nil
	}

	for _, row := range rows[1:] {
		code := cell(row, codeCol)
		raw := cell(row, priceCol)
		if code == "" || raw == "" {
			continue
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"sheet":        sheetName,
				"product_code": code,
				"value":        raw,
			}).Warn("unparsable sale price, dropping")
			continue
		}
		prices[code] = price
	}

	return prices, nil
}

func purchaseRows(l *Ledger) [][]interface{} {
	records := l.Records()
	rows := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []interface{}{
			rec.ProductCode,
			rec.ProductName,
			rec.TotalQty.String(),
			rec.CurrentPrice.String(),
			rec.PreviousPrice.String(),
			formatNaiveTime(rec.LastPurchase),
			rec.LastInvoiceKey,
			rec.Category,
		})
	}
	return rows
}

func writeSheet(f *excelize.File, sheet Sheet) error {
	if _, err := f.NewSheet(sheet.Name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet.Name, err)
	}

	header := make([]interface{}, len(sheet.Columns))
	for i, col := range sheet.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet.Name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of sheet %s: %w", sheet.Name, err)
	}

	for i, row := range sheet.Rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d of sheet %s: %w", i+2, sheet.Name, err)
		}
		if err := f.SetSheetRow(sheet.Name, cellRef, &row); err != nil {
			return fmt.Errorf("failed to write row %d of sheet %s: %w", i+2, sheet.Name, err)
		}
	}

	return nil
}

func recordFromRow(row []string, index map[string]int) *ProductRecord {
	get := func(col string) string {
		i, ok := index[col]
		if !ok {
			return ""
		}
		return cell(row, i)
	}

	return &ProductRecord{
		ProductCode:    get("product_code"),
		ProductName:    get("product_name"),
		TotalQty:       parseDecimal(get("total_quantity")),
		CurrentPrice:   parseDecimal(get("current_price")),
		PreviousPrice:  parseDecimal(get("previous_price")),
		LastPurchase:   parseNaiveTime(get("last_purchase")),
		LastInvoiceKey: get("last_invoice_key"),
		Category:       get("category"),
	}
}

func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.ToLower(name))] = i
	}
	return index
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseDecimal(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseNaiveTime reads the persisted timestamp formats. Always naive:
// no zone is attached on load, matching what Save writes.
func parseNaiveTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{timestampLayout, "2006-01-02T15:04:05", dateLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatNaiveTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timestampLayout)
}
