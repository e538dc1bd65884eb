package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"pti/dm/internal/metrics"
	"pti/dm/internal/sessionlog"
)

const owmBase = "http://api.openweathermap.org/data/2.5/"

// OpenWeatherMapOptions configures an OpenWeatherMap client.
type OpenWeatherMapOptions struct {
	APIKey string
	// BaseURL must end with a slash.
	BaseURL string
	Timeout time.Duration
	// DefaultState is used when a query carries no state.
	DefaultState string
	Logger       *zap.Logger
	HTTPClient   *http.Client
}

// OpenWeatherMap queries the weather, forecast and forecast/daily endpoints.
type OpenWeatherMap struct {
	http         *http.Client
	apiKey       string
	base         string
	defaultState string
	log          *zap.Logger
}

func NewOpenWeatherMap(opts OpenWeatherMapOptions) *OpenWeatherMap {
	c := &OpenWeatherMap{
		http:         opts.HTTPClient,
		apiKey:       opts.APIKey,
		base:         opts.BaseURL,
		defaultState: opts.DefaultState,
		log:          opts.Logger,
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.base == "" {
		c.base = owmBase
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.Named("weather")
	return c
}

func method(q Query) string {
	switch {
	case q.Daily:
		return "forecast/daily"
	case !q.Time.IsZero():
		return "forecast"
	}
	return "weather"
}

func (c *OpenWeatherMap) values(q Query) url.Values {
	v := url.Values{}
	if q.Lat != nil && q.Lon != nil {
		v.Set("lat", strconv.FormatFloat(*q.Lat, 'f', -1, 64))
		v.Set("lon", strconv.FormatFloat(*q.Lon, 'f', -1, 64))
	} else {
		state := q.State
		if state == "" || state == "none" {
			state = c.defaultState
		}
		place := state
		if q.City != "" && q.City != "none" {
			place = q.City + "," + state
		}
		v.Set("q", place)
	}
	if c.apiKey != "" {
		v.Set("APPID", c.apiKey)
	}
	return v
}

// Weather implements Finder.
func (c *OpenWeatherMap) Weather(ctx context.Context, q Query) (*Weather, error) {
	start := time.Now()
	m := method(q)
	values := c.values(q)
	c.log.Debug("weather request", zap.String("method", m), zap.String("q", values.Get("q")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+m+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveProvider("openweathermap", "transport_error", start)
		c.log.Warn("weather request failed", zap.Error(err))
		return nil, fmt.Errorf("openweathermap: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveProvider("openweathermap", "transport_error", start)
		return nil, fmt.Errorf("openweathermap: read body: %w", err)
	}
	if err := sessionlog.Record(ctx, "openweathermap", body); err != nil {
		c.log.Warn("could not log weather response", zap.Error(err))
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveProvider("openweathermap", "http_error", start)
		return nil, fmt.Errorf("openweathermap: %s", resp.Status)
	}

	w, err := ParseOpenWeatherMap(body, q)
	if err != nil {
		metrics.ObserveProvider("openweathermap", "bad_response", start)
		return nil, err
	}
	metrics.ObserveProvider("openweathermap", "ok", start)
	c.log.Debug("weather", zap.Stringer("weather", w), zap.Duration("latency", time.Since(start)))
	return w, nil
}

type owmCondition struct {
	ID int `json:"id"`
}

type owmEntry struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Temp struct {
		Day float64 `json:"day"`
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"temp"`
	Weather []owmCondition `json:"weather"`
}

type owmResponse struct {
	owmEntry
	List []owmEntry `json:"list"`
}

func (e owmEntry) condition() string {
	if len(e.Weather) == 0 {
		return Condition(0)
	}
	return Condition(e.Weather[0].ID)
}

// ParseOpenWeatherMap reads a current, hourly or daily response depending
// on the query. The requested time is clamped into the forecast range and
// hourly temperatures are interpolated linearly between the two forecast
// points around it.
func ParseOpenWeatherMap(body []byte, q Query) (*Weather, error) {
	var r owmResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("openweathermap: decode: %w", err)
	}
	if q.Time.IsZero() {
		return &Weather{Condition: r.condition(), Temp: celsius(r.Main.Temp)}, nil
	}

	if len(r.List) == 0 {
		return nil, ErrNoForecast
	}
	// forecasts start at the next slot; clamp into the covered range
	ts := q.At().Unix()
	if first := r.List[0].Dt; ts < first {
		ts = first
	}
	if last := r.List[len(r.List)-1].Dt; ts > last {
		ts = last
	}

	i := 0
	for i+1 < len(r.List) && ts >= r.List[i+1].Dt {
		i++
	}
	a := r.List[i]
	if q.Daily {
		return &Weather{
			Condition: a.condition(),
			Temp:      celsius(a.Temp.Day),
			MinTemp:   celsius(a.Temp.Min),
			MaxTemp:   celsius(a.Temp.Max),
			Daily:     true,
		}, nil
	}
	temp := a.Main.Temp
	if i+1 < len(r.List) {
		if b := r.List[i+1]; b.Dt > a.Dt {
			slope := (b.Main.Temp - a.Main.Temp) / float64(b.Dt-a.Dt)
			temp += slope * float64(ts-a.Dt)
		}
	}
	return &Weather{Condition: a.condition(), Temp: celsius(temp)}, nil
}

func celsius(kelvin float64) int {
	return int(math.Round(kelvin - 273.15))
}
