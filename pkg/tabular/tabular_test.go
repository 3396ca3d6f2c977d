package tabular

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRows(t *testing.T) {
	input := "Supplier Name, Supplier VAT number / Registration Number\nMIRAGE SRL,IT04092700121\nACME,US123\n"

	rows, err := Rows(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "MIRAGE SRL", rows[0]["Supplier Name"])
	assert.Equal(t, "IT04092700121", rows[0]["Supplier VAT number / Registration Number"])
	assert.Equal(t, "ACME", rows[1]["Supplier Name"])
}

func TestRows_ShortRecord(t *testing.T) {
	reader := strings.NewReader("a,b\nonly") // csv reader errors on inconsistent field count
	_, err := Rows(reader)
	assert.Error(t, err)
}

func TestRows_Empty(t *testing.T) {
	_, err := Rows(strings.NewReader(""))
	assert.Error(t, err)
}
