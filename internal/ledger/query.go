package ledger

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/placepulse/internal/apperr"
	"github.com/sells-group/placepulse/internal/docstore"
	"github.com/sells-group/placepulse/internal/geocache"
	"github.com/sells-group/placepulse/internal/lifecycle"
	"github.com/sells-group/placepulse/internal/model"
	"github.com/sells-group/placepulse/internal/quota"
)

const listPageSize = 500

// Bounds is a lat/lon viewport. A MinLon greater than MaxLon crosses the
// antimeridian.
type Bounds struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// ParseBounds parses "minLat,minLon,maxLat,maxLon".
func ParseBounds(s string) (*Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, eris.Wrapf(apperr.ErrInvalidInput, "ledger: bounds %q: want minLat,minLon,maxLat,maxLon", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, eris.Wrapf(apperr.ErrInvalidInput, "ledger: bounds %q: %v", s, err)
		}
		v[i] = f
	}
	b := &Bounds{MinLat: v[0], MinLon: v[1], MaxLat: v[2], MaxLon: v[3]}
	if !geocache.ValidCoordinate(b.MinLat, b.MinLon) || !geocache.ValidCoordinate(b.MaxLat, b.MaxLon) || b.MinLat > b.MaxLat {
		return nil, eris.Wrapf(apperr.ErrInvalidInput, "ledger: bounds %q out of range", s)
	}
	return b, nil
}

// boxes returns the bounds as one or two XY boxes (x=lon, y=lat).
func (b Bounds) boxes() []*geom.Bounds {
	if b.MinLon <= b.MaxLon {
		return []*geom.Bounds{geom.NewBounds(geom.XY).Set(b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)}
	}
	return []*geom.Bounds{
		geom.NewBounds(geom.XY).Set(b.MinLon, b.MinLat, 180, b.MaxLat),
		geom.NewBounds(geom.XY).Set(-180, b.MinLat, b.MaxLon, b.MaxLat),
	}
}

// Contains reports whether the point lies inside or on the border.
func (b Bounds) Contains(lat, lon float64) bool {
	for _, box := range b.boxes() {
		if box.OverlapsPoint(geom.XY, geom.Coord{lon, lat}) {
			return true
		}
	}
	return false
}

// ListOptions filters ListByTab.
type ListOptions struct {
	Tab    model.Tab
	Bounds *Bounds
	Limit  int
}

// ListByTab returns the places in a tab, ordered for that tab. Tabs are
// derived at read time.
func (l *Ledger) ListByTab(ctx context.Context, opts ListOptions) ([]model.Place, error) {
	if opts.Tab == "" {
		opts.Tab = model.TabAll
	}
	if _, ok := model.ParseTab(string(opts.Tab)); !ok {
		return nil, eris.Wrapf(apperr.ErrInvalidInput, "ledger: unknown tab %q", opts.Tab)
	}
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	now := l.now()
	var out []model.Place
	err := docstore.Each(ctx, l.store, docstore.CollectionPlaces, listPageSize, func(d docstore.Document) error {
		var p model.Place
		if err := d.Decode(&p); err != nil {
			return err
		}
		if opts.Bounds != nil && !opts.Bounds.Contains(p.Lat, p.Lon) {
			return nil
		}
		if lifecycle.Classify(&p, now, l.cfg.Lifecycle).Has(opts.Tab) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Store(err, "ledger: list")
	}

	lifecycle.Sort(out, opts.Tab)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// DashboardStats aggregates counts across all places.
func (l *Ledger) DashboardStats(ctx context.Context) (*model.DashboardStats, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	now := l.now()
	stats := &model.DashboardStats{TabCounts: make(map[model.Tab]int, len(model.AllTabs)), GeneratedAt: now}
	for _, tab := range model.AllTabs {
		stats.TabCounts[tab] = 0
	}
	err := docstore.Each(ctx, l.store, docstore.CollectionPlaces, listPageSize, func(d docstore.Document) error {
		var p model.Place
		if err := d.Decode(&p); err != nil {
			return err
		}
		stats.TotalPlaces++
		if p.IsHidden {
			stats.HiddenPlaces++
		} else {
			stats.VisiblePlaces++
		}
		stats.TotalEndorsements += p.TotalEndorsements
		stats.TotalDownvotes += p.Downvotes
		for tab := range lifecycle.Classify(&p, now, l.cfg.Lifecycle) {
			stats.TabCounts[tab]++
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Store(err, "ledger: stats")
	}

	if l.usage != nil {
		used, err := l.usage.Used(ctx, quota.ExternalLookupKey)
		if err != nil {
			zap.L().Warn("ledger: quota usage unavailable", zap.Error(err))
		}
		stats.ExternalLookupsToday = used
	}
	return stats, nil
}
