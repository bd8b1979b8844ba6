package vat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
	"github.com/karelmartinek-a11y/kajovospend/internal/extract"
)

func fp(v float64) *float64 { return &v }

func TestBandCode(t *testing.T) {
	assert.Equal(t, "ZERO", BandCode(0))
	assert.Equal(t, "REDUCED_2", BandCode(10))
	assert.Equal(t, "REDUCED_0", BandCode(12))
	assert.Equal(t, "REDUCED_1", BandCode(15))
	assert.Equal(t, "STANDARD", BandCode(21))
	assert.Equal(t, "RATE_19", BandCode(19))
}

func TestDeriveItemFromLineGross(t *testing.T) {
	it := DeriveItem(1, extract.Item{Name: "Zboží", Quantity: 1, VATRate: 21, LineGross: fp(121)})

	assert.Equal(t, 1, it.LineNo)
	assert.InDelta(t, 121, it.LineGross, 0.001)
	assert.InDelta(t, 100, it.LineNet, 0.001)
	assert.InDelta(t, 21, it.VATAmount, 0.001)
	assert.InDelta(t, 121, it.UnitGross, 0.001)
	assert.InDelta(t, 100, it.UnitNet, 0.001)
	assert.Equal(t, "STANDARD", it.VATCode)
}

func TestDeriveItemFromUnitNet(t *testing.T) {
	it := DeriveItem(2, extract.Item{Name: "Pečivo", Quantity: 2, VATRate: 12, UnitNet: fp(50)})

	assert.InDelta(t, 112, it.LineGross, 0.001)
	assert.InDelta(t, 100, it.LineNet, 0.001)
	assert.InDelta(t, 12, it.VATAmount, 0.001)
	assert.InDelta(t, 56, it.UnitGross, 0.001)
	assert.InDelta(t, 50, it.UnitNet, 0.001)
	assert.Equal(t, "REDUCED_0", it.VATCode)
}

func TestDeriveItemZeroQuantityCountsAsOne(t *testing.T) {
	it := DeriveItem(1, extract.Item{Name: "X", VATRate: 0, LineNet: fp(200)})

	assert.Equal(t, 1.0, it.Quantity)
	assert.InDelta(t, 200, it.LineGross, 0.001)
	assert.InDelta(t, 0, it.VATAmount, 0.001)
	assert.Equal(t, "ZERO", it.VATCode)
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, WithinTolerance(100, 102), "within the absolute bound")
	assert.True(t, WithinTolerance(1030, 1000), "exactly the relative bound")
	assert.False(t, WithinTolerance(1031, 1000))
	assert.False(t, WithinTolerance(10, 12.5))
	assert.True(t, WithinTolerance(150, 150))
}

func TestComputeTotalsReconciles(t *testing.T) {
	items := []entity.LineItem{
		DeriveItem(1, extract.Item{Name: "A", Quantity: 1, VATRate: 21, LineGross: fp(121)}),
		DeriveItem(2, extract.Item{Name: "B", Quantity: 1, VATRate: 12, LineGross: fp(56)}),
	}
	tot := ComputeTotals(items, fp(177))

	assert.InDelta(t, 177, tot.Gross, 0.001)
	assert.InDelta(t, 150, tot.Net, 0.01)
	assert.True(t, tot.Reconciled)
	assert.False(t, tot.Unverifiable)
	assert.InDelta(t, 0, tot.Delta, 0.001)

	require.Len(t, tot.Breakdown, 2)
	assert.Equal(t, 12.0, tot.Breakdown[0].Rate, "breakdown sorted by rate")
	assert.Equal(t, 21.0, tot.Breakdown[1].Rate)
	assert.Equal(t, "REDUCED_0", tot.Breakdown[0].Code)
	assert.InDelta(t, 56, tot.Breakdown[0].Gross, 0.001)
}

func TestComputeTotalsUnverifiableWithoutPrintedTotal(t *testing.T) {
	items := []entity.LineItem{
		DeriveItem(1, extract.Item{Name: "A", Quantity: 1, VATRate: 21, LineGross: fp(100)}),
	}
	tot := ComputeTotals(items, nil)
	assert.True(t, tot.Unverifiable)
	assert.False(t, tot.Reconciled)
}

func TestCorrectItemsFixesGarbledAmount(t *testing.T) {
	raws := []extract.Item{
		{Name: "A", Quantity: 1, VATRate: 21, LineGross: fp(100), RawTotal: "100,00"},
		{Name: "B", Quantity: 1, VATRate: 21, LineGross: fp(5000), RawTotal: "5OOO"},
	}
	items := []entity.LineItem{
		DeriveItem(1, raws[0]),
		DeriveItem(2, raws[1]),
	}

	out, corrected := CorrectItems(items, raws, fp(150))
	require.True(t, corrected)
	assert.InDelta(t, 100, out[0].LineGross, 0.001)
	assert.InDelta(t, 50, out[1].LineGross, 0.001)
	assert.InDelta(t, 41.32, out[1].LineNet, 0.01, "corrected line is re-derived")
}

func TestCorrectItemsLeavesReconciledAlone(t *testing.T) {
	raws := []extract.Item{
		{Name: "A", Quantity: 1, VATRate: 21, LineGross: fp(149), RawTotal: "149,00"},
	}
	items := []entity.LineItem{DeriveItem(1, raws[0])}

	out, corrected := CorrectItems(items, raws, fp(150))
	assert.False(t, corrected)
	assert.InDelta(t, 149, out[0].LineGross, 0.001)
}

func TestCorrectItemsRequiresStrictImprovement(t *testing.T) {
	// the only candidate reproduces the same value, so nothing changes
	raws := []extract.Item{
		{Name: "A", Quantity: 1, VATRate: 21, LineGross: fp(500), RawTotal: "500,00"},
	}
	items := []entity.LineItem{DeriveItem(1, raws[0])}

	_, corrected := CorrectItems(items, raws, fp(150))
	assert.False(t, corrected)
}

func TestCorrectItemsWithoutPrintedTotal(t *testing.T) {
	raws := []extract.Item{{Name: "A", Quantity: 1, VATRate: 21, LineGross: fp(100), RawTotal: "1OO"}}
	items := []entity.LineItem{DeriveItem(1, raws[0])}

	_, corrected := CorrectItems(items, raws, nil)
	assert.False(t, corrected)
}
