// Package pipeline orchestrates invoice ingestion: extract, reconcile,
// persist, project and archive, one file at a time.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rumor-ml/commons.systems/nfeledger/internal/ledger"
	"github.com/rumor-ml/commons.systems/nfeledger/internal/nfe"
	"github.com/rumor-ml/commons.systems/nfeledger/internal/reconcile"
	"github.com/rumor-ml/commons.systems/nfeledger/internal/scanner"
	"github.com/rumor-ml/commons.systems/nfeledger/internal/views"
	"github.com/rumor-ml/commons.systems/nfeledger/internal/watcher"
)

// Pipeline processes invoice files against one workbook. Processing is
// strictly sequential; the workbook is an exclusive resource.
type Pipeline struct {
	store      *ledger.Store
	classifier reconcile.Classifier
	archiveDir string
	log        *logrus.Logger
}

// Summary aggregates the outcome of a batch run.
type Summary struct {
	Applied    int
	Duplicates int
	Failed     int
}

// New creates a pipeline that archives processed invoices to archiveDir.
func New(store *ledger.Store, classifier reconcile.Classifier, archiveDir string, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		classifier: classifier,
		archiveDir: archiveDir,
		log:        log,
	}
}

// ProcessFile ingests one invoice file to completion: extract, merge,
// persist the ledger, regenerate the views and archive the source file.
// The archive move happens only after a successful save, so a crash can
// at worst reprocess the file, which the duplicate check absorbs.
func (p *Pipeline) ProcessFile(path string) (reconcile.Status, error) {
	entry := p.log.WithField("invoice_file", filepath.Base(path))

	items, key, err := nfe.ParseFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to extract invoice %s: %w", path, err)
	}
	entry = entry.WithField("invoice_key", key)

	l, err := p.store.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load ledger: %w", err)
	}

	status := reconcile.Merge(l, items, key, p.classifier, p.log)

	if status == reconcile.StatusApplied {
		sheets, err := p.projectViews(l)
		if err != nil {
			return status, err
		}
		if err := p.store.Save(l, sheets); err != nil {
			// Not durable yet: leave the file in place for reprocessing.
			return status, fmt.Errorf("failed to persist ledger: %w", err)
		}
		entry.WithField("line_items", len(items)).Info("invoice merged")
	}

	if err := p.archive(path); err != nil {
		entry.WithError(err).Warn("failed to archive processed invoice")
	}

	return status, nil
}

// projectViews regenerates the flat and per-category sheets, carrying
// operator sale prices over from the previous version of each sheet.
func (p *Pipeline) projectViews(l *ledger.Ledger) ([]ledger.Sheet, error) {
	flatPrices, err := p.store.SalePrices(ledger.SheetProducts)
	if err != nil {
		return nil, fmt.Errorf("failed to read sale prices of %s: %w", ledger.SheetProducts, err)
	}
	sheets := []ledger.Sheet{views.Flat(l, flatPrices)}

	for _, cat := range l.Categories() {
		name := views.CategorySheetName(cat)
		prices, err := p.store.SalePrices(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sale prices of %s: %w", name, err)
		}
		sheets = append(sheets, views.ByCategory(l, cat, prices))
	}

	return sheets, nil
}

func (p *Pipeline) archive(path string) error {
	if err := os.MkdirAll(p.archiveDir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory %s: %w", p.archiveDir, err)
	}
	dest := filepath.Join(p.archiveDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("failed to move invoice to archive: %w", err)
	}
	return nil
}

// RunBatch processes every invoice currently in the inbox. Single-file
// failures are logged and counted; the batch always runs to the end.
func (p *Pipeline) RunBatch(inboxDir string) (Summary, error) {
	runLog := p.log.WithField("run_id", newRunID())

	paths, err := scanner.New(inboxDir).Scan()
	if err != nil {
		return Summary{}, err
	}
	runLog.WithField("invoices", len(paths)).Info("batch started")

	var sum Summary
	for _, path := range paths {
		status, err := p.ProcessFile(path)
		switch {
		case err != nil:
			sum.Failed++
			runLog.WithError(err).WithField("invoice_file", filepath.Base(path)).Error("invoice skipped")
		case status == reconcile.StatusDuplicate:
			sum.Duplicates++
		default:
			sum.Applied++
		}
	}

	runLog.WithFields(logrus.Fields{
		"applied":    sum.Applied,
		"duplicates": sum.Duplicates,
		"failed":     sum.Failed,
	}).Info("batch finished")
	return sum, nil
}

// Watch runs an initial batch pass and then processes invoices as they
// arrive, until the context is cancelled. An in-flight invoice always
// finishes before the loop observes cancellation.
func (p *Pipeline) Watch(ctx context.Context, inboxDir string) error {
	if _, err := p.RunBatch(inboxDir); err != nil {
		return err
	}

	w, err := watcher.New(inboxDir)
	if err != nil {
		return err
	}
	defer w.Close()

	runLog := p.log.WithField("run_id", newRunID())
	runLog.WithField("inbox", inboxDir).Info("watching for new invoices")

	events := w.Start()
	for {
		select {
		case <-ctx.Done():
			runLog.Info("watch stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("watcher closed unexpectedly")
			}
			if ev.Error != nil {
				runLog.WithError(ev.Error).Error("watch error")
				continue
			}
			status, err := p.ProcessFile(ev.Path)
			if err != nil {
				runLog.WithError(err).WithField("invoice_file", filepath.Base(ev.Path)).Error("invoice skipped")
				continue
			}
			if status == reconcile.StatusDuplicate {
				runLog.WithField("invoice_file", filepath.Base(ev.Path)).Info("duplicate invoice archived")
			}
		}
	}
}

// newRunID returns a short correlation id for the log lines of one run.
func newRunID() string {
	return uuid.NewString()[:8]
}
