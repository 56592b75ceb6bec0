package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanner_Scan(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "nota2.xml"), []byte("<x/>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "nota1.XML"), []byte("<x/>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "readme.txt"), []byte("x"), 0644))

	// Archived invoices in a subdirectory must not be rescanned.
	archive := filepath.Join(tmpDir, "processed")
	require.NoError(t, os.MkdirAll(archive, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(archive, "old.xml"), []byte("<x/>"), 0644))

	paths, err := New(tmpDir).Scan()
	require.NoError(t, err)

	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(tmpDir, "nota1.XML"), paths[0])
	assert.Equal(t, filepath.Join(tmpDir, "nota2.xml"), paths[1])
}

func TestScanner_ScanMissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent")).Scan()
	assert.Error(t, err)
}

func TestIsInvoiceFile(t *testing.T) {
	assert.True(t, IsInvoiceFile("nota.xml"))
	assert.True(t, IsInvoiceFile("NOTA.XML"))
	assert.False(t, IsInvoiceFile("nota.xml.bak"))
	assert.False(t, IsInvoiceFile("nota"))
}
