// Package health checks the external services a dialogue depends on.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"pti/dm/internal/config"
)

const (
	googleDirections = "https://maps.googleapis.com/maps/api/directions/json"
	openWeatherMap   = "http://api.openweathermap.org/data/2.5/"
)

// CheckResult is one provider check. Endpoint is the host or file checked and
// Key is the config key that fixes a failure.
type CheckResult struct {
	Name     string        `json:"name"`
	OK       bool          `json:"ok"`
	Endpoint string        `json:"endpoint,omitempty"`
	Key      string        `json:"config_key,omitempty"`
	Latency  time.Duration `json:"latency_ms"`
	Error    string        `json:"error,omitempty"`
}

// HealthStatus is the combined result of all provider checks.
type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// String renders one line per provider, e.g.
//
//	✗ weather/openweathermap api.openweathermap.org (12ms) - invalid API key (401) [weather.api_key]
func (h HealthStatus) String() string {
	var b strings.Builder
	n := 0
	for _, c := range h.Checks {
		if c.OK {
			n++
		}
	}
	fmt.Fprintf(&b, "ptidm providers: %d/%d reachable\n", n, len(h.Checks))
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		fmt.Fprintf(&b, "  %s %s", mark, c.Name)
		if c.Endpoint != "" {
			fmt.Fprintf(&b, " %s", c.Endpoint)
		}
		fmt.Fprintf(&b, " (%dms)", c.Latency.Milliseconds())
		if c.Error != "" {
			fmt.Fprintf(&b, " - %s", c.Error)
			if c.Key != "" {
				fmt.Fprintf(&b, " [%s]", c.Key)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Checker runs the checks with its own HTTP client.
type Checker struct {
	HTTP *http.Client
}

// CheckAll runs all health checks and returns combined status
func CheckAll(ctx context.Context, cfg config.Config) HealthStatus {
	return Checker{HTTP: &http.Client{Timeout: 5 * time.Second}}.CheckAll(ctx, cfg)
}

func (c Checker) CheckAll(ctx context.Context, cfg config.Config) HealthStatus {
	checks := []CheckResult{
		c.checkDirections(ctx, cfg),
		c.checkWeather(ctx, cfg),
	}

	allOK := true
	for _, r := range checks {
		if !r.OK {
			allOK = false
		}
	}
	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func (c Checker) checkDirections(ctx context.Context, cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "directions/" + cfg.Directions.Provider}

	if cfg.Directions.Provider == config.ProviderFixture {
		result.Endpoint = cfg.Directions.FixturePath
		result.Key = "directions.fixture_path"
		if _, err := os.Stat(cfg.Directions.FixturePath); err != nil {
			result.Error = fmt.Sprintf("fixture unreadable: %v", err)
		} else {
			result.OK = true
		}
		result.Latency = time.Since(start)
		return result
	}

	base := cfg.Directions.BaseURL
	if base == "" {
		base = googleDirections
	}
	result.Endpoint = host(base)
	result.Key = "directions.api_key"
	if cfg.Directions.APIKey == "" {
		result.Error = "GOOGLE_MAPS_API_KEY not set"
		result.Latency = time.Since(start)
		return result
	}

	// cheapest query the API accepts
	q := url.Values{"origin": {"Wall Street"}, "destination": {"Wall Street"}, "key": {cfg.Directions.APIKey}}
	return c.ping(ctx, result, start, base+"?"+q.Encode())
}

func (c Checker) checkWeather(ctx context.Context, cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "weather/" + cfg.Weather.Provider}

	base := cfg.Weather.BaseURL
	if base == "" {
		base = openWeatherMap
	}
	result.Endpoint = host(base)
	result.Key = "weather.api_key"
	if cfg.Weather.APIKey == "" {
		result.Error = "OPENWEATHERMAP_API_KEY not set"
		result.Latency = time.Since(start)
		return result
	}
	q := url.Values{"q": {"New York"}, "APPID": {cfg.Weather.APIKey}}
	return c.ping(ctx, result, start, base+"weather?"+q.Encode())
}

func (c Checker) ping(ctx context.Context, result CheckResult, start time.Time, target string) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.Latency = time.Since(start)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		result.Error = fmt.Sprintf("invalid API key (%d)", resp.StatusCode)
		return result
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body))
		return result
	}
	io.Copy(io.Discard, resp.Body)

	result.OK = true
	return result
}

func host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
