package nfe

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleKey = "35123456789012345678901234567890123456789012"

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	return decimal.RequireFromString(s)
}

func sampleInvoice(wrapped bool) string {
	doc := `<NFe xmlns="http://www.portalfiscal.inf.br/nfe">
  <infNFe Id="NFe` + sampleKey + `" versao="4.00">
    <ide>
      <dhEmi>2024-01-15T12:22:00-03:00</dhEmi>
    </ide>
    <emit>
      <xNome>Distribuidora São João LTDA</xNome>
    </emit>
    <det nItem="1">
      <prod>
        <cProd>1001</cProd>
        <xProd>Arroz Tipo 1 5kg</xProd>
        <qCom>3.0000</qCom>
        <vUnCom>22.5000</vUnCom>
      </prod>
    </det>
    <det nItem="2">
      <prod>
        <cProd>1002</cProd>
        <xProd>Feijão Preto 1kg</xProd>
        <qCom>10.0000</qCom>
        <vUnCom>8.9000</vUnCom>
      </prod>
    </det>
  </infNFe>
</NFe>`
	if wrapped {
		return `<nfeProc versao="4.00">` + doc + `</nfeProc>`
	}
	return doc
}

func TestParse_WrappedAndBareRoots(t *testing.T) {
	for _, wrapped := range []bool{true, false} {
		items, key, err := Parse(strings.NewReader(sampleInvoice(wrapped)))
		require.NoError(t, err)
		assert.Equal(t, sampleKey, key)
		require.Len(t, items, 2)

		first := items[0]
		assert.Equal(t, "DISTRIBUIDORA_SAO-1001", first.ProductCode)
		assert.Equal(t, "Arroz Tipo 1 5kg", first.ProductName)
		assert.True(t, first.Quantity.Equal(mustDecimal(t, "3")))
		assert.True(t, first.UnitPrice.Equal(mustDecimal(t, "22.5")))
		assert.Equal(t, sampleKey, first.InvoiceKey)
		assert.Equal(t, "Distribuidora São João LTDA", first.SupplierName)
		assert.False(t, first.PurchaseDate.IsZero())

		assert.Equal(t, "DISTRIBUIDORA_SAO-1002", items[1].ProductCode)
	}
}

func TestParse_SingleItemYieldsOneElement(t *testing.T) {
	doc := `<nfeProc><NFe><infNFe Id="NFe` + sampleKey + `">
  <ide><dEmi>2024-01-15</dEmi></ide>
  <emit><xNome>Mercado Central</xNome></emit>
  <det><prod><cProd>7</cProd><xProd>Sal</xProd><qCom>1</qCom><vUnCom>2.50</vUnCom></prod></det>
</infNFe></NFe></nfeProc>`

	items, key, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, sampleKey, key)
	require.Len(t, items, 1)
	assert.Equal(t, "MERCADO_CENTRAL-7", items[0].ProductCode)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), items[0].PurchaseDate)
}

func TestParse_NotNFe(t *testing.T) {
	_, _, err := Parse(strings.NewReader(`<cancelamento><motivo>x</motivo></cancelamento>`))
	assert.ErrorIs(t, err, ErrNotNFe)
}

func TestParse_MissingKey(t *testing.T) {
	doc := `<NFe><infNFe Id="35000"><ide><dEmi>2024-01-15</dEmi></ide><emit><xNome>A B</xNome></emit></infNFe></NFe>`
	_, _, err := Parse(strings.NewReader(doc))
	assert.ErrorIs(t, err, ErrNoInvoiceKey)
}

func TestParse_BrokenXML(t *testing.T) {
	_, _, err := Parse(strings.NewReader(`<nfeProc><NFe>`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotNFe)
}

func TestParseEmissionDate(t *testing.T) {
	t.Run("bare date", func(t *testing.T) {
		got, err := ParseEmissionDate("", "2024-03-02")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("offset timestamps of the same instant normalize equally", func(t *testing.T) {
		a, err := ParseEmissionDate("2024-01-15T12:22:00-03:00", "")
		require.NoError(t, err)
		b, err := ParseEmissionDate("2024-01-15T15:22:00Z", "")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Equal(t, time.UTC, a.Location())
	})

	t.Run("offset-less timestamp", func(t *testing.T) {
		got, err := ParseEmissionDate("2024-01-15T08:30:00", "")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC), got)
	})

	t.Run("dhEmi wins over dEmi", func(t *testing.T) {
		got, err := ParseEmissionDate("2024-01-15T08:30:00", "2020-01-01")
		require.NoError(t, err)
		assert.Equal(t, 2024, got.Year())
	})

	t.Run("unparsable", func(t *testing.T) {
		_, err := ParseEmissionDate("15/01/2024", "")
		assert.Error(t, err)

		_, err = ParseEmissionDate("", "")
		assert.Error(t, err)
	})
}

func TestNormalizeSupplier(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"two words kept", "Distribuidora São João LTDA", "DISTRIBUIDORA_SAO"},
		{"single word", "Atacadão", "ATACADAO"},
		{"punctuation stripped", "J&J Comércio de Alimentos S.A.", "JJ_COMERCIO"},
		{"digits preserved", "101 Bebidas", "101_BEBIDAS"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSupplier(tt.in))
		})
	}
}

func TestParse_Latin1Charset(t *testing.T) {
	// Header declares ISO-8859-1; body bytes use the Latin-1 encoding of "ç".
	doc := `<?xml version="1.0" encoding="ISO-8859-1"?>` +
		`<NFe><infNFe Id="NFe` + sampleKey + `">` +
		`<ide><dEmi>2010-06-01</dEmi></ide>` +
		"<emit><xNome>A\xe7ougue Central</xNome></emit>" +
		`<det><prod><cProd>9</cProd><xProd>Carne</xProd><qCom>2</qCom><vUnCom>30.00</vUnCom></prod></det>` +
		`</infNFe></NFe>`

	items, _, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Açougue Central", items[0].SupplierName)
	assert.Equal(t, "ACOUGUE_CENTRAL-9", items[0].ProductCode)
}
