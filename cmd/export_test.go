//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/placepulse/internal/export"
	"github.com/sells-group/placepulse/internal/ledger"
	"github.com/sells-group/placepulse/internal/model"
)

func TestParseTabs(t *testing.T) {
	tabs, err := parseTabs("recent, classics,,all")
	require.NoError(t, err)
	assert.Equal(t, []model.Tab{model.TabRecent, model.TabClassics, model.TabAll}, tabs)

	_, err = parseTabs("recent,popular")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown tab "popular"`)

	_, err = parseTabs(" , ")
	assert.Error(t, err)
}

func TestCollectSheets_WritesWorkbook(t *testing.T) {
	withDefaultConfig(t)
	ctx := context.Background()
	env, err := initEnv(ctx)
	require.NoError(t, err)
	defer env.Close()

	for _, seed := range []model.PlaceSeed{
		{Name: "Harbor Tacos", Lat: 32.71, Lon: -117.16},
		{Name: "Far Away Diner", Lat: 47.6, Lon: -122.3},
	} {
		_, err := env.Ledger.Endorse(ctx, ledger.EndorseRequest{UserID: "u1", Seed: &seed})
		require.NoError(t, err)
	}

	b, err := ledger.ParseBounds("32,-118,33,-117")
	require.NoError(t, err)
	sheets, err := collectSheets(ctx, env.Ledger, []model.Tab{model.TabRecent, model.TabAll}, b, 0)
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	require.Len(t, sheets[1].Places, 1)
	assert.Equal(t, "Harbor Tacos", sheets[1].Places[0].Name)

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, export.Save(path, sheets...))
	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 2)
}

func TestCollectStats(t *testing.T) {
	withDefaultConfig(t)
	ctx := context.Background()
	env, err := initEnv(ctx)
	require.NoError(t, err)
	defer env.Close()

	_, err = env.Ledger.Endorse(ctx, ledger.EndorseRequest{UserID: "u1", Seed: &model.PlaceSeed{Name: "Kiosk", Lat: 1, Lon: 1}})
	require.NoError(t, err)

	out, err := collectStats(ctx, env.Ledger)
	require.NoError(t, err)
	assert.Equal(t, 1, out.TotalPlaces)

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "json", out))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.EqualValues(t, 1, decoded["total_places"])
	assert.NotContains(t, decoded, "collections")
}

func TestWriteReport_UnknownFormat(t *testing.T) {
	err := writeReport(&bytes.Buffer{}, "toml", struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}
