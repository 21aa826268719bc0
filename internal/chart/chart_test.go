package chart

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/groundwater/internal/models"
)

func testDataset() models.Dataset {
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	var rows []models.Row
	for i := 0; i < 10; i++ {
		rows = append(rows,
			models.Row{Timestamp: base.AddDate(0, 0, i), Value: -8 - float64(i)*0.1, Location: "Bhopal"},
		)
	}
	for i := 0; i < 5; i++ {
		rows = append(rows,
			models.Row{Timestamp: base.AddDate(0, 0, i*2), Value: -12 + float64(i)*0.2, Location: "Raipur"},
		)
	}
	return models.Dataset{Rows: rows}
}

func TestRender(t *testing.T) {
	data, err := Render(testDataset())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Width, img.Bounds().Dx())
	assert.Equal(t, Height, img.Bounds().Dy())
}

func TestRender_SeriesColours(t *testing.T) {
	img, err := draw(testDataset(), Width, Height)
	require.NoError(t, err)

	found := map[int]bool{}
	r := img.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := img.RGBAAt(x, y)
			for i, p := range Palette[:2] {
				if c == p {
					found[i] = true
				}
			}
		}
	}
	assert.True(t, found[0], "first location colour drawn")
	assert.True(t, found[1], "second location colour drawn")
}

func TestRender_SinglePoint(t *testing.T) {
	ds := models.Dataset{Rows: []models.Row{{Timestamp: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), Value: -3, Location: "Kota"}}}
	_, err := Render(ds)
	assert.NoError(t, err)
}

func TestRender_Empty(t *testing.T) {
	_, err := Render(models.Dataset{})
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestCache(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC))
	c := NewCache(time.Minute, clock)
	ds := testDataset()

	_, ok := c.Get(Key(ds))
	assert.False(t, ok)

	first, err := c.Render(ds)
	require.NoError(t, err)

	cached, ok := c.Get(Key(ds))
	require.True(t, ok)
	assert.Equal(t, first, cached)

	clock.Advance(2 * time.Minute)
	_, ok = c.Get(Key(ds))
	assert.False(t, ok)
}

func TestKey_DependsOnRows(t *testing.T) {
	a := testDataset()
	b := testDataset()
	assert.Equal(t, Key(a), Key(b))

	b.Rows[0].Value = 99
	assert.NotEqual(t, Key(a), Key(b))
}

func TestRender_OverflowingRange(t *testing.T) {
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	ds := models.Dataset{Rows: []models.Row{
		{Timestamp: base, Value: 1e308, Location: "Kota"},
		{Timestamp: base.AddDate(0, 0, 1), Value: -1e308, Location: "Kota"},
	}}
	_, err := Render(ds)
	assert.ErrorIs(t, err, ErrValueRange)
}
