// Package places is a Google Places (New) client for identifying the
// business at a coordinate.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/placepulse/internal/resilience"
)

const (
	defaultBaseURL = "https://places.googleapis.com/v1"

	searchFieldMask  = "places.id,places.displayName,places.location,places.types"
	detailsFieldMask = "id,displayName,formattedAddress,websiteUri,types,location,photos"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// Client looks up places near a coordinate.
type Client interface {
	// SearchNearby returns the best candidate within radiusMeters of the
	// point, or nil when there is none. A non-empty hint switches to a text
	// search biased to the same circle.
	SearchNearby(ctx context.Context, lat, lon, radiusMeters float64, hint string) (*Candidate, error)

	// Details returns identity details for a place id.
	Details(ctx context.Context, id string) (*Details, error)
}

// Candidate is a search hit.
type Candidate struct {
	ID    string
	Name  string
	Lat   float64
	Lon   float64
	Types []string
}

// Details is the identity of a place.
type Details struct {
	ID        string
	Name      string
	Address   string
	Website   string
	Types     []string
	Lat       float64
	Lon       float64
	PhotoRefs []string
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithLanguage sets the response language code.
func WithLanguage(code string) Option {
	return func(c *httpClient) { c.language = code }
}

type httpClient struct {
	apiKey   string
	baseURL  string
	language string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type circle struct {
	Center latLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type area struct {
	Circle circle `json:"circle"`
}

type nearbyRequest struct {
	MaxResultCount      int    `json:"maxResultCount"`
	RankPreference      string `json:"rankPreference"`
	LanguageCode        string `json:"languageCode,omitempty"`
	LocationRestriction area   `json:"locationRestriction"`
}

type textRequest struct {
	TextQuery      string `json:"textQuery"`
	MaxResultCount int    `json:"pageSize"`
	LanguageCode   string `json:"languageCode,omitempty"`
	LocationBias   area   `json:"locationBias"`
}

type displayName struct {
	Text string `json:"text"`
}

type photo struct {
	Name string `json:"name"`
}

type apiPlace struct {
	ID               string      `json:"id"`
	DisplayName      displayName `json:"displayName"`
	FormattedAddress string      `json:"formattedAddress"`
	WebsiteURI       string      `json:"websiteUri"`
	Types            []string    `json:"types"`
	Location         *latLng     `json:"location"`
	Photos           []photo     `json:"photos"`
}

type searchResponse struct {
	Places []apiPlace `json:"places"`
}

func (c *httpClient) SearchNearby(ctx context.Context, lat, lon, radiusMeters float64, hint string) (*Candidate, error) {
	where := area{Circle: circle{Center: latLng{Latitude: lat, Longitude: lon}, Radius: radiusMeters}}

	var (
		path string
		body any
	)
	if hint = strings.TrimSpace(hint); hint != "" {
		path = "/places:searchText"
		body = textRequest{TextQuery: hint, MaxResultCount: 1, LanguageCode: c.language, LocationBias: where}
	} else {
		path = "/places:searchNearby"
		body = nearbyRequest{MaxResultCount: 1, RankPreference: "DISTANCE", LanguageCode: c.language, LocationRestriction: where}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "places: marshal search request")
	}

	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, path, "places: search", searchFieldMask, payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Places) == 0 {
		return nil, nil
	}

	p := resp.Places[0]
	cand := &Candidate{ID: p.ID, Name: p.DisplayName.Text, Types: p.Types}
	if p.Location != nil {
		cand.Lat, cand.Lon = p.Location.Latitude, p.Location.Longitude
	}
	return cand, nil
}

func (c *httpClient) Details(ctx context.Context, id string) (*Details, error) {
	if id == "" {
		return nil, eris.New("places: empty place id")
	}
	path := "/places/" + url.PathEscape(id)
	if c.language != "" {
		path += "?languageCode=" + url.QueryEscape(c.language)
	}

	var p apiPlace
	if err := c.do(ctx, http.MethodGet, path, "places: details", detailsFieldMask, nil, &p); err != nil {
		return nil, err
	}

	d := &Details{
		ID:      p.ID,
		Name:    p.DisplayName.Text,
		Address: p.FormattedAddress,
		Website: p.WebsiteURI,
		Types:   p.Types,
	}
	if p.Location != nil {
		d.Lat, d.Lon = p.Location.Latitude, p.Location.Longitude
	}
	for _, ph := range p.Photos {
		d.PhotoRefs = append(d.PhotoRefs, ph.Name)
	}
	return d, nil
}

func (c *httpClient) do(ctx context.Context, method, path, op, fieldMask string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, op+": rate limiter")
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, op+": create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, op+": send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return eris.Wrap(err, op+": read response")
	}
	if len(respBody) > maxResponseBytes {
		return eris.Errorf("%s: response exceeds %d bytes", op, maxResponseBytes)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, string(respBody))
		if resilience.IsTransientStatus(resp.StatusCode) {
			return resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return statusErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, op+": unmarshal response")
	}
	return nil
}
