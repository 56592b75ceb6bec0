// Package scanner discovers invoice files awaiting ingestion.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner lists invoice XML files in the inbox directory. The listing is
// deliberately non-recursive: the archive of processed invoices lives in
// a subdirectory and must not be rescanned.
type Scanner struct {
	inboxDir string
}

// New creates a scanner for the given inbox directory.
func New(inboxDir string) *Scanner {
	return &Scanner{inboxDir: inboxDir}
}

// Scan returns the invoice file paths in the inbox, sorted by name so
// batch runs are deterministic.
func (s *Scanner) Scan() ([]string, error) {
	inbox := expandHome(s.inboxDir)

	entries, err := os.ReadDir(inbox)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox %s: %w", inbox, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !IsInvoiceFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(inbox, entry.Name()))
	}

	sort.Strings(paths)
	return paths, nil
}

// IsInvoiceFile reports whether a file name looks like an invoice
// document.
func IsInvoiceFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xml")
}

// expandHome expands ~ to the home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
