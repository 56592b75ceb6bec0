// Package reconcile merges extracted invoice line items into the purchase
// ledger. This is the only component with nontrivial invariants:
// idempotence per invoice key, pricing ordered by purchase date rather
// than processing order, and quantity totals that accumulate regardless
// of date order.
package reconcile

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rumor-ml/commons.systems/nfeledger/internal/ledger"
	"github.com/rumor-ml/commons.systems/nfeledger/internal/nfe"
)

// Status is the outcome of merging one invoice.
type Status string

const (
	// StatusApplied means the invoice was merged into the ledger.
	StatusApplied Status = "applied"
	// StatusDuplicate means the invoice key was already recorded; the
	// ledger is unchanged. Not an error.
	StatusDuplicate Status = "duplicate"
)

// Classifier assigns a category from product and supplier names. It must
// be pure; the category is computed once, at first insertion.
type Classifier interface {
	Classify(productName, supplierName string) string
}

// Merge applies an invoice's line items to the ledger.
//
// The duplicate check is invoice-granular: if the key was merged before,
// nothing in this invoice is applied. Malformed items (missing code,
// non-positive quantity) are skipped individually with a warning; the
// rest of the invoice still applies.
func Merge(l *ledger.Ledger, items []nfe.LineItem, invoiceKey string, classifier Classifier, log *logrus.Logger) Status {
	if l.IsProcessed(invoiceKey) {
		log.WithField("invoice_key", invoiceKey).Info("invoice already merged, skipping")
		return StatusDuplicate
	}

	for _, item := range items {
		if item.ProductCode == "" {
			log.WithField("invoice_key", invoiceKey).Warn("line item missing product code, skipping")
			continue
		}
		if !item.Quantity.IsPositive() {
			log.WithFields(logrus.Fields{
				"invoice_key":  invoiceKey,
				"product_code": item.ProductCode,
				"quantity":     item.Quantity.String(),
			}).Warn("line item with non-positive quantity, skipping")
			continue
		}

		rec := l.Product(item.ProductCode)
		if rec == nil {
			l.Put(&ledger.ProductRecord{
				ProductCode:    item.ProductCode,
				ProductName:    item.ProductName,
				TotalQty:       item.Quantity,
				CurrentPrice:   item.UnitPrice,
				PreviousPrice:  item.UnitPrice,
				LastPurchase:   item.PurchaseDate,
				LastInvoiceKey: invoiceKey,
				Category:       classifier.Classify(item.ProductName, item.SupplierName),
			})
			continue
		}

		// Quantity accumulates for every non-duplicate invoice, even
		// out-of-order ones.
		rec.TotalQty = rec.TotalQty.Add(item.Quantity)

		if supersedes(item.PurchaseDate, rec.LastPurchase) {
			rec.PreviousPrice = rec.CurrentPrice
			rec.CurrentPrice = item.UnitPrice
			rec.LastPurchase = item.PurchaseDate
			rec.LastInvoiceKey = invoiceKey
		} else {
			// An older or same-dated invoice never overwrites newer
			// pricing. Deliberate policy, not an error.
			log.WithFields(logrus.Fields{
				"invoice_key":   invoiceKey,
				"product_code":  item.ProductCode,
				"invoice_date":  item.PurchaseDate,
				"ledger_date":   rec.LastPurchase,
				"ignored_price": item.UnitPrice.String(),
			}).Info("older invoice, pricing unchanged")
		}
	}

	l.MarkProcessed(invoiceKey)
	return StatusApplied
}

// supersedes reports whether an incoming purchase date should take over
// the stored pricing. A stored zero date loses to any dated invoice; an
// incoming zero date never wins.
func supersedes(incoming, stored time.Time) bool {
	if incoming.IsZero() {
		return false
	}
	if stored.IsZero() {
		return true
	}
	return incoming.After(stored)
}
