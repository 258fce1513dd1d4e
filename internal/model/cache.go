package model

import "time"

// CachedExternalPlace is third-party place identity cached by coordinates.
type CachedExternalPlace struct {
	ExternalPlaceID string    `json:"external_place_id"`
	Provider        string    `json:"provider"`
	Name            string    `json:"name,omitempty"`
	Address         string    `json:"address,omitempty"`
	Website         string    `json:"website,omitempty"`
	Types           []string  `json:"types,omitempty"`
	Lat             float64   `json:"lat"`
	Lon             float64   `json:"lon"`
	PhotoRefs       []string  `json:"photo_refs,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CacheKey returns the provider-qualified document key.
func (c *CachedExternalPlace) CacheKey() string {
	return c.Provider + ":" + c.ExternalPlaceID
}

// QuotaCounter is a per-day, per-key counter document.
type QuotaCounter struct {
	Day   string `json:"day"`
	Key   string `json:"key"`
	Count uint   `json:"count"`
}
