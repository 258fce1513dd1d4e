// Package export writes tab listings to spreadsheet workbooks.
package export

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/placepulse/internal/model"
)

// Sheet is one tab's listing.
type Sheet struct {
	Tab    model.Tab
	Places []model.Place
}

// Header is the column row written at the top of every sheet.
var Header = []string{
	"id", "name", "category", "lat", "lon", "score",
	"total_endorsements", "recent_endorsements", "downvotes",
	"last_endorsed_at", "created_at", "external_place_id",
}

// Write renders one worksheet per sheet into w.
func Write(w io.Writer, sheets ...Sheet) error {
	f, err := build(sheets)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

// Save writes the workbook to path.
func Save(path string, sheets ...Sheet) error {
	f, err := build(sheets)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func build(sheets []Sheet) (*xlsx.File, error) {
	if len(sheets) == 0 {
		return nil, eris.New("export: no sheets")
	}
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(string(s.Tab))
		if err != nil {
			return nil, eris.Wrapf(err, "export: add sheet %s", s.Tab)
		}
		header := sheet.AddRow()
		for _, h := range Header {
			header.AddCell().SetString(h)
		}
		for _, p := range s.Places {
			addPlace(sheet.AddRow(), p)
		}
	}
	return f, nil
}

func addPlace(row *xlsx.Row, p model.Place) {
	row.AddCell().SetString(p.ID)
	row.AddCell().SetString(p.Name)
	row.AddCell().SetString(p.Category)
	row.AddCell().SetFloat(p.Lat)
	row.AddCell().SetFloat(p.Lon)
	row.AddCell().SetFloat(p.Score)
	row.AddCell().SetInt(int(p.TotalEndorsements))
	row.AddCell().SetInt(int(p.RecentEndorsements))
	row.AddCell().SetInt(int(p.Downvotes))
	row.AddCell().SetString(timestamp(p.LastEndorsedAt))
	row.AddCell().SetString(timestamp(p.CreatedAt))
	row.AddCell().SetString(p.ExternalPlaceID)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
