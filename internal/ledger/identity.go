package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/placepulse/internal/geocache"
	"github.com/sells-group/placepulse/internal/model"
)

// SeedID returns the deterministic place id for a seed. Seeds carrying an
// external id map to "ext:<id>"; others hash their fine bucket and
// normalized name so the same (lat, lon, name) always resolves to one place.
func SeedID(seed model.PlaceSeed) string {
	if seed.ExternalPlaceID != "" {
		return "ext:" + seed.ExternalPlaceID
	}
	sum := sha256.Sum256([]byte(geocache.FineKey(seed.Lat, seed.Lon) + "|" + NormalizeName(seed.Name)))
	return "pin:" + hex.EncodeToString(sum[:])[:20]
}

// NormalizeName folds compatibility forms and case, and collapses whitespace.
func NormalizeName(name string) string {
	s := cases.Fold().String(norm.NFKC.String(name))
	return strings.Join(strings.Fields(s), " ")
}
