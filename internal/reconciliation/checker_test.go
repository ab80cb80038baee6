package reconciliation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckReportsSingleNegativeStock(t *testing.T) {
	products := []ProductInfo{{ID: 1, SKU: "RT-01", Name: "Roti Tawar", UoM: "pcs"}}
	stock := []StockRow{{ProductID: 1, BranchID: 3, Quantity: -2}}

	found := Check(products, stock)
	require.Len(t, found, 1)
	require.Equal(t, KindNegativeStock, found[0].Kind)
	require.Equal(t, SeverityCritical, found[0].Severity)
	require.EqualValues(t, 1, found[0].ProductID)
	require.EqualValues(t, 3, found[0].BranchID)
	require.EqualValues(t, -2, found[0].CurrentStock)
	require.Zero(t, found[0].CalculatedStock)
	require.NotEmpty(t, found[0].Suggestion)
}

func TestCheckOrdersCriticalFirst(t *testing.T) {
	products := []ProductInfo{
		{ID: 1, SKU: "DN-01", Name: "Donat", UoM: ""},
		{ID: 2, SKU: " dn-01", Name: "Donat Coklat", UoM: "pcs"},
		{ID: 3, SKU: "BL-01", Name: "Bolu", UoM: "box"},
	}
	stock := []StockRow{
		{ProductID: 3, BranchID: 1, Quantity: 7, HasMovements: true, MovementBalance: 5},
		{ProductID: 3, BranchID: 2, Quantity: 4},
	}

	found := Check(products, stock)
	require.Len(t, found, 4)

	kinds := make([]Kind, 0, len(found))
	for _, d := range found {
		kinds = append(kinds, d.Kind)
	}
	require.Equal(t, []Kind{KindDuplicateSKU, KindDuplicateSKU, KindMissingUoM, KindMovementDrift}, kinds)
	require.Equal(t, SeverityCritical, found[0].Severity)
	require.Equal(t, SeverityWarning, found[3].Severity)
	require.EqualValues(t, 5, found[3].CalculatedStock)
	require.Contains(t, found[0].Suggestion, "1, 2")
}

func TestCheckIgnoresRecordsWithoutMovements(t *testing.T) {
	products := []ProductInfo{{ID: 1, SKU: "A", Name: "A", UoM: "pcs"}}
	found := Check(products, []StockRow{{ProductID: 1, BranchID: 1, Quantity: 9}})
	require.Empty(t, found)
}
