package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pti/dm/internal/config"
)

func TestCheckAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("APPID") == "bad" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var cfg config.Config
	cfg.Directions.Provider = config.ProviderFixture
	cfg.Directions.FixturePath = filepath.Join("..", "directions", "testdata", "central-park-wall-street.json")
	cfg.Weather.Provider = "openweathermap"
	cfg.Weather.APIKey = "good"
	cfg.Weather.BaseURL = srv.URL + "/"

	c := Checker{HTTP: srv.Client()}
	st := c.CheckAll(context.Background(), cfg)
	require.True(t, st.OK, st.String())
	require.Len(t, st.Checks, 2)
	assert.Equal(t, "directions/fixture", st.Checks[0].Name)

	cfg.Weather.APIKey = "bad"
	st = c.CheckAll(context.Background(), cfg)
	assert.False(t, st.OK)
	assert.Contains(t, st.Checks[1].Error, "401")
	assert.True(t, strings.Contains(st.String(), "✗ weather/openweathermap"), st.String())
}

func TestStringNamesEndpointAndConfigKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var cfg config.Config
	cfg.Directions.Provider = config.ProviderFixture
	cfg.Directions.FixturePath = filepath.Join("..", "directions", "testdata", "central-park-wall-street.json")
	cfg.Weather.Provider = "openweathermap"
	cfg.Weather.APIKey = "bad"
	cfg.Weather.BaseURL = srv.URL + "/"

	st := Checker{HTTP: srv.Client()}.CheckAll(context.Background(), cfg)
	out := st.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out)
	assert.Equal(t, "ptidm providers: 1/2 reachable", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "  ✓ directions/fixture "+cfg.Directions.FixturePath+" ("), lines[1])
	assert.NotContains(t, lines[1], "[directions.fixture_path]", "keys only show on failure")

	host := strings.TrimPrefix(srv.URL, "http://")
	assert.Equal(t, host, st.Checks[1].Endpoint)
	assert.Equal(t, "weather.api_key", st.Checks[1].Key)
	assert.True(t, strings.HasPrefix(lines[2], "  ✗ weather/openweathermap "+host+" ("), lines[2])
	assert.True(t, strings.HasSuffix(lines[2], "- invalid API key (401) [weather.api_key]"), lines[2])
}

func TestMissingKeys(t *testing.T) {
	var cfg config.Config
	cfg.Directions.Provider = config.ProviderGoogle
	cfg.Weather.Provider = "openweathermap"

	st := Checker{}.CheckAll(context.Background(), cfg)
	assert.False(t, st.OK)
	assert.Equal(t, "GOOGLE_MAPS_API_KEY not set", st.Checks[0].Error)
	assert.Equal(t, "OPENWEATHERMAP_API_KEY not set", st.Checks[1].Error)
	assert.Equal(t, "maps.googleapis.com", st.Checks[0].Endpoint)
	assert.Equal(t, "api.openweathermap.org", st.Checks[1].Endpoint)
	assert.Contains(t, st.String(), "GOOGLE_MAPS_API_KEY not set [directions.api_key]")
}

func TestMissingFixture(t *testing.T) {
	var cfg config.Config
	cfg.Directions.Provider = config.ProviderFixture
	cfg.Directions.FixturePath = filepath.Join(t.TempDir(), "nope.json")
	r := Checker{}.checkDirections(context.Background(), cfg)
	assert.False(t, r.OK)
	assert.Contains(t, r.Error, "fixture unreadable")
}
