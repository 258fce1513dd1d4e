package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/placepulse/internal/model"
)

func rows(t *testing.T, sheet *xlsx.Sheet) [][]string {
	t.Helper()
	var out [][]string
	for _, r := range sheet.Rows {
		cells := make([]string, len(r.Cells))
		for i, c := range r.Cells {
			cells[i] = c.String()
		}
		out = append(out, cells)
	}
	return out
}

func TestWrite(t *testing.T) {
	at := time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := Write(&buf,
		Sheet{Tab: model.TabTrending, Places: []model.Place{{
			ID: "pin:abc", Name: "Truth Coffee", Category: "cafe", Lat: -33.9249, Lon: 18.4241,
			TotalEndorsements: 7, RecentEndorsements: 4, Downvotes: 1, LastEndorsedAt: at, CreatedAt: at,
			ExternalPlaceID: "ChIJ-cafe",
		}}},
		Sheet{Tab: model.TabClassics},
	)
	require.NoError(t, err)

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	trending := rows(t, f.Sheet["trending"])
	require.Len(t, trending, 2)
	assert.Equal(t, Header, trending[0])
	assert.Equal(t, "pin:abc", trending[1][0])
	assert.Equal(t, "Truth Coffee", trending[1][1])
	assert.Equal(t, "7", trending[1][6])
	assert.Equal(t, "2026-06-01T08:30:00Z", trending[1][9])
	assert.Equal(t, "ChIJ-cafe", trending[1][11])

	classics := rows(t, f.Sheet["classics"])
	assert.Len(t, classics, 1, "header only")
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places.xlsx")
	require.NoError(t, Save(path, Sheet{Tab: model.TabAll, Places: []model.Place{{ID: "a", ExternalPlaceID: "ChIJ-a"}}}))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	all := rows(t, f.Sheet["all"])
	require.Len(t, all, 2)
	assert.Equal(t, "", all[1][9], "zero time renders empty")
}

func TestWrite_NoSheets(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}))
}
