// Package docstore is the small document-store abstraction behind the ledger,
// the geo cache, and the quota limiter. Documents are JSON values addressed
// by (collection, key). Transact runs a read-modify-write as one atomic unit.
package docstore

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by Get when no document exists.
var ErrNotFound = eris.New("docstore: document not found")

// Collections used by the engine.
const (
	CollectionPlaces          = "places"
	CollectionPlaceEvents     = "place_events"
	CollectionPlaceActions    = "place_actions"
	CollectionExternalPlaces  = "external_places"
	CollectionGeoFine         = "geo_fine"
	CollectionGeoCoarse       = "geo_coarse"
	CollectionQuotaCounters   = "quota_counters"
	CollectionMaintenanceRuns = "maintenance_runs"
)

// Tx reads and writes documents inside a transaction. Documents read through
// a Tx stay locked until the transaction ends.
type Tx interface {
	Get(ctx context.Context, collection, key string, dst any) error
	Set(ctx context.Context, collection, key string, v any) error
}

// Document is a raw listed document.
type Document struct {
	Key  string
	Body []byte
}

// Decode unmarshals the document body into dst.
func (d Document) Decode(dst any) error {
	return eris.Wrapf(json.Unmarshal(d.Body, dst), "docstore: decode %s", d.Key)
}

// Store is a document store with single-unit transactions.
type Store interface {
	Get(ctx context.Context, collection, key string, dst any) error
	Set(ctx context.Context, collection, key string, v any) error
	// Transact runs fn atomically. If fn returns an error nothing is written.
	Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// List returns up to limit documents with keys greater than afterKey,
	// ordered by key.
	List(ctx context.Context, collection, afterKey string, limit int) ([]Document, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Each pages through a whole collection, calling fn for every document.
func Each(ctx context.Context, s Store, collection string, pageSize int, fn func(Document) error) error {
	if pageSize <= 0 {
		pageSize = 200
	}
	after := ""
	for {
		docs, err := s.List(ctx, collection, after, pageSize)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := fn(d); err != nil {
				return err
			}
		}
		if len(docs) < pageSize {
			return nil
		}
		after = docs[len(docs)-1].Key
	}
}

func encode(collection, key string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: encode %s/%s", collection, key)
	}
	return b, nil
}

func decode(collection, key string, body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return eris.Wrapf(err, "docstore: decode %s/%s", collection, key)
	}
	return nil
}
