// Package nfe extracts purchase line items from NF-e fiscal invoice XML.
package nfe

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNotNFe is returned for well-formed XML that is not an NF-e document.
	ErrNotNFe = errors.New("document is not an NF-e")

	// ErrNoInvoiceKey is returned when the infNFe Id attribute is missing
	// or does not carry the NFe prefix.
	ErrNoInvoiceKey = errors.New("invoice key not found")
)

// invoiceKeyPrefix is the fixed textual prefix of the infNFe Id attribute:
// <infNFe Id="NFe35123456789012345678901234567890123456789012">
const invoiceKeyPrefix = "NFe"

// LineItem is one purchased product entry extracted from an invoice.
type LineItem struct {
	ProductCode  string // supplier-namespaced: "<SUPPLIER>-<cProd>"
	ProductName  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	PurchaseDate time.Time // timezone-naive; zero when the document date was unparsable
	InvoiceKey   string
	SupplierName string
}

// XML document structure. The procNFe wrapper is present on authorized
// invoices; bare NFe roots also occur and are accepted.
type procNFe struct {
	XMLName xml.Name `xml:"nfeProc"`
	NFe     nfeRoot  `xml:"NFe"`
}

type nfeRoot struct {
	XMLName xml.Name `xml:"NFe"`
	InfNFe  infNFe   `xml:"infNFe"`
}

type infNFe struct {
	ID   string  `xml:"Id,attr"`
	Ide  ideElem `xml:"ide"`
	Emit emit    `xml:"emit"`
	Det  []det   `xml:"det"`
}

type ideElem struct {
	DhEmi string `xml:"dhEmi"` // modern: 2024-01-15T12:22:00-03:00
	DEmi  string `xml:"dEmi"`  // legacy: 2024-01-15
}

type emit struct {
	XNome string `xml:"xNome"`
}

type det struct {
	Prod prod `xml:"prod"`
}

type prod struct {
	CProd  string `xml:"cProd"`
	XProd  string `xml:"xProd"`
	QCom   string `xml:"qCom"`
	VUnCom string `xml:"vUnCom"`
}

// ParseFile reads and extracts a single invoice file.
func ParseFile(path string) ([]LineItem, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open invoice %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse extracts the line items and the invoice key from one NF-e document.
// Returns ErrNotNFe when the document lacks the minimal NF-e envelope and
// ErrNoInvoiceKey when the identifier attribute is absent or malformed.
func Parse(r io.Reader) ([]LineItem, string, error) {
	inf, err := decodeInfNFe(r)
	if err != nil {
		return nil, "", err
	}

	key, err := extractKey(inf.ID)
	if err != nil {
		return nil, "", err
	}

	// Unparsable dates become zero time: the record is still merged, it
	// just never wins a pricing comparison.
	issued, _ := ParseEmissionDate(inf.Ide.DhEmi, inf.Ide.DEmi)

	supplier := strings.TrimSpace(inf.Emit.XNome)
	supplierCode := NormalizeSupplier(supplier)

	items := make([]LineItem, 0, len(inf.Det))
	for _, d := range inf.Det {
		code := strings.TrimSpace(d.Prod.CProd)
		if code != "" && supplierCode != "" {
			code = supplierCode + "-" + code
		}

		qty, err := decimal.NewFromString(strings.TrimSpace(d.Prod.QCom))
		if err != nil {
			qty = decimal.Zero
		}
		price, err := decimal.NewFromString(strings.TrimSpace(d.Prod.VUnCom))
		if err != nil {
			price = decimal.Zero
		}

		items = append(items, LineItem{
			ProductCode:  code,
			ProductName:  strings.TrimSpace(d.Prod.XProd),
			Quantity:     qty,
			UnitPrice:    price,
			PurchaseDate: issued,
			InvoiceKey:   key,
			SupplierName: supplier,
		})
	}

	return items, key, nil
}

// decodeInfNFe accepts both the nfeProc wrapper and a bare NFe root.
func decodeInfNFe(r io.Reader) (*infNFe, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice content: %w", err)
	}

	var wrapped procNFe
	if err := unmarshalXML(content, &wrapped); err == nil && wrapped.NFe.InfNFe.ID != "" {
		return &wrapped.NFe.InfNFe, nil
	}

	var bare nfeRoot
	if err := unmarshalXML(content, &bare); err == nil && bare.InfNFe.ID != "" {
		return &bare.InfNFe, nil
	}

	// Distinguish "not our document" from "broken XML" for logging, both
	// cause the invoice to be skipped upstream.
	var probe struct {
		XMLName xml.Name
	}
	if err := unmarshalXML(content, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode invoice XML: %w", err)
	}
	if probe.XMLName.Local != "nfeProc" && probe.XMLName.Local != "NFe" {
		return nil, ErrNotNFe
	}
	return nil, ErrNoInvoiceKey
}

// unmarshalXML decodes with a charset reader: older NF-e files declare
// ISO-8859-1 instead of UTF-8.
func unmarshalXML(content []byte, v interface{}) error {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		switch strings.ToLower(charset) {
		case "iso-8859-1", "latin1", "windows-1252":
			return charmap.ISO8859_1.NewDecoder().Reader(input), nil
		case "utf-8", "":
			return input, nil
		default:
			return nil, fmt.Errorf("unsupported charset %q", charset)
		}
	}
	return dec.Decode(v)
}

func extractKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, invoiceKeyPrefix) || len(id) == len(invoiceKeyPrefix) {
		return "", ErrNoInvoiceKey
	}
	return strings.TrimPrefix(id, invoiceKeyPrefix), nil
}

// ParseEmissionDate converts dhEmi or dEmi into a timezone-naive local
// timestamp. dhEmi carries a UTC offset which is applied before the zone
// is dropped, so that comparisons across invoices are stable.
func ParseEmissionDate(dhEmi, dEmi string) (time.Time, error) {
	raw := strings.TrimSpace(dhEmi)
	if raw == "" {
		raw = strings.TrimSpace(dEmi)
	}
	if raw == "" {
		return time.Time{}, fmt.Errorf("no emission date present")
	}

	if strings.Contains(raw, "T") {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return stripZone(t.Local()), nil
		}
		// Offset-less timestamp, e.g. "2024-01-15T12:22:00"
		t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.Local)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse emission timestamp %q: %w", raw, err)
		}
		return stripZone(t), nil
	}

	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse emission date %q: %w", raw, err)
	}
	return stripZone(t), nil
}

// stripZone rebuilds the wall-clock reading without zone information.
func stripZone(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// NormalizeSupplier reduces a supplier display name to a short stable code:
// accents folded, non-alphanumerics dropped, first two words uppercased and
// joined with an underscore. "Distribuidora São João LTDA" -> "DISTRIBUIDORA_SAO".
func NormalizeSupplier(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(unicode.ToUpper(r))
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ':
			b.WriteRune(r)
		}
	}

	words := strings.Fields(b.String())
	switch {
	case len(words) >= 2:
		return words[0] + "_" + words[1]
	case len(words) == 1:
		return words[0]
	default:
		return ""
	}
}
