package places

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placepulse/internal/resilience"
)

func TestSearchNearby_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/places:searchNearby", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Equal(t, searchFieldMask, r.Header.Get("X-Goog-FieldMask"))

		var body nearbyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "DISTANCE", body.RankPreference)
		assert.Equal(t, 1, body.MaxResultCount)
		assert.InDelta(t, -33.9249, body.LocationRestriction.Circle.Center.Latitude, 1e-9)
		assert.InDelta(t, 18.4241, body.LocationRestriction.Circle.Center.Longitude, 1e-9)
		assert.InDelta(t, 75.0, body.LocationRestriction.Circle.Radius, 1e-9)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(searchResponse{Places: []apiPlace{{
			ID:          "ChIJ-cafe",
			DisplayName: displayName{Text: "Truth Coffee"},
			Types:       []string{"cafe", "food"},
			Location:    &latLng{Latitude: -33.92495, Longitude: 18.42405},
		}}})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	cand, err := client.SearchNearby(context.Background(), -33.9249, 18.4241, 75, "")

	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "ChIJ-cafe", cand.ID)
	assert.Equal(t, "Truth Coffee", cand.Name)
	assert.Equal(t, []string{"cafe", "food"}, cand.Types)
	assert.InDelta(t, -33.92495, cand.Lat, 1e-9)
}

func TestSearchNearby_HintUsesTextSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/places:searchText", r.URL.Path)

		var body textRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "truth coffee", body.TextQuery)
		assert.Equal(t, "en", body.LanguageCode)
		assert.InDelta(t, 50.0, body.LocationBias.Circle.Radius, 1e-9)

		_ = json.NewEncoder(w).Encode(searchResponse{Places: []apiPlace{{ID: "ChIJ-text"}}})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithLanguage("en"))
	cand, err := client.SearchNearby(context.Background(), 1, 2, 50, "  truth coffee ")
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "ChIJ-text", cand.ID)
	assert.Zero(t, cand.Lat, "missing location leaves coordinates zero")
}

func TestSearchNearby_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	cand, err := client.SearchNearby(context.Background(), 1, 2, 50, "")
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestSearchNearby_TransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	cand, err := client.SearchNearby(context.Background(), 1, 2, 50, "")
	require.Error(t, err)
	assert.Nil(t, cand)
	assert.Contains(t, err.Error(), "429")

	var te *resilience.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
}

func TestSearchNearby_PermanentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid API key"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.SearchNearby(context.Background(), 1, 2, 50, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.False(t, resilience.IsTransient(err))
}

func TestDetails_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/places/ChIJ-cafe", r.URL.Path)
		assert.Equal(t, detailsFieldMask, r.Header.Get("X-Goog-FieldMask"))
		assert.Empty(t, r.Header.Get("Content-Type"))

		_ = json.NewEncoder(w).Encode(apiPlace{
			ID:               "ChIJ-cafe",
			DisplayName:      displayName{Text: "Truth Coffee"},
			FormattedAddress: "36 Buitenkant St, Cape Town",
			WebsiteURI:       "https://truth.coffee",
			Types:            []string{"cafe"},
			Location:         &latLng{Latitude: -33.9249, Longitude: 18.4241},
			Photos:           []photo{{Name: "places/ChIJ-cafe/photos/a"}, {Name: "places/ChIJ-cafe/photos/b"}},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL+"/"))
	d, err := client.Details(context.Background(), "ChIJ-cafe")
	require.NoError(t, err)
	assert.Equal(t, &Details{
		ID:        "ChIJ-cafe",
		Name:      "Truth Coffee",
		Address:   "36 Buitenkant St, Cape Town",
		Website:   "https://truth.coffee",
		Types:     []string{"cafe"},
		Lat:       -33.9249,
		Lon:       18.4241,
		PhotoRefs: []string{"places/ChIJ-cafe/photos/a", "places/ChIJ-cafe/photos/b"},
	}, d)
}

func TestDetails_EmptyID(t *testing.T) {
	client := NewClient("test-key", WithBaseURL("http://127.0.0.1:0"))
	_, err := client.Details(context.Background(), "")
	assert.Error(t, err)
}

func TestDetails_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Details(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestDetails_OversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","displayName":{"text":"`))
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxResponseBytes))
		_, _ = w.Write([]byte(`"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Details(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response exceeds")
}

func TestClient_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(100))
	cand, err := client.SearchNearby(ctx, 1, 2, 50, "")
	assert.Error(t, err)
	assert.Nil(t, cand)
}
