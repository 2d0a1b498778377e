package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evstation/core/model"
)

func TestGenerateGroupsByPile(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	bills := []model.Bill{
		{PileID: "B", StartTime: base, Energy: 10, Duration: 0.5, ChargingFee: 7, ServiceFee: 8, TotalFee: 15},
		{PileID: "A", StartTime: base.Add(time.Hour), Energy: 30, Duration: 1, ChargingFee: 30, ServiceFee: 24, TotalFee: 54},
		{PileID: "A", StartTime: base.Add(2 * time.Hour), Energy: 10, Duration: 1.0 / 3, ChargingFee: 4, ServiceFee: 8, TotalFee: 12},
		{PileID: "C", StartTime: base.Add(-48 * time.Hour), Energy: 5, TotalFee: 1},
	}
	rows := Generate(bills, base.Add(-time.Hour), base.Add(3*time.Hour), "day")
	require.Len(t, rows, 2)

	assert.Equal(t, "A", rows[0].PileID)
	assert.Equal(t, 2, rows[0].Sessions)
	assert.InDelta(t, 40, rows[0].Energy, 1e-9)
	assert.InDelta(t, 66, rows[0].TotalFee, 1e-9)
	assert.InDelta(t, 20, rows[0].AverageEnergy, 1e-9)
	assert.Equal(t, "day", rows[0].Period)

	assert.Equal(t, "B", rows[1].PileID)
	assert.Equal(t, 1, rows[1].Sessions)

	tot := Totals(rows)
	assert.Equal(t, 3, tot.Sessions)
	assert.InDelta(t, 81, tot.TotalFee, 1e-9)
}

func TestWindow(t *testing.T) {
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	start, end, err := Window("week", now)
	require.NoError(t, err)
	assert.Equal(t, now, end)
	assert.Equal(t, now.AddDate(0, 0, -7), start)

	_, _, err = Window("decade", now)
	assert.Error(t, err)
}

func TestGenerateEmpty(t *testing.T) {
	assert.Empty(t, Generate(nil, time.Now().Add(-time.Hour), time.Now(), ""))
}
