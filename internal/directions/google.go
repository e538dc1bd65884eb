package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"pti/dm/internal/metrics"
	"pti/dm/internal/sessionlog"
)

const googleBase = "https://maps.googleapis.com/maps/api/directions/json"

// GoogleOptions configures a GoogleClient.
type GoogleOptions struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	Location   *time.Location
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// GoogleClient queries the Google Directions API in transit mode.
type GoogleClient struct {
	http   *http.Client
	apiKey string
	base   string
	loc    *time.Location
	log    *zap.Logger
	now    func() time.Time
}

func NewGoogleClient(opts GoogleOptions) *GoogleClient {
	c := &GoogleClient{
		http:   opts.HTTPClient,
		apiKey: opts.APIKey,
		base:   opts.BaseURL,
		loc:    opts.Location,
		log:    opts.Logger,
		now:    time.Now,
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.base == "" {
		c.base = googleBase
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.Named("directions")
	return c
}

// Directions implements Finder.
func (c *GoogleClient) Directions(ctx context.Context, conn ConnInfo, departure, arrival time.Time) (*Directions, error) {
	start := time.Now()
	empty := &Directions{Conn: conn}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"?"+c.query(conn, departure, arrival).Encode(), nil)
	if err != nil {
		return empty, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveProvider("google", "transport_error", start)
		c.log.Warn("directions request failed", zap.Error(err))
		return empty, fmt.Errorf("google directions: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveProvider("google", "transport_error", start)
		return empty, fmt.Errorf("google directions: read body: %w", err)
	}
	if err := sessionlog.Record(ctx, "google-directions", body); err != nil {
		c.log.Warn("could not log directions response", zap.Error(err))
	}
	if resp.StatusCode/100 != 2 {
		metrics.ObserveProvider("google", "http_error", start)
		return empty, fmt.Errorf("google directions: %s", resp.Status)
	}

	d, err := ParseGoogle(body, conn, c.loc)
	if err != nil {
		metrics.ObserveProvider("google", "bad_response", start)
		return empty, err
	}
	metrics.ObserveProvider("google", "ok", start)
	c.log.Debug("directions", zap.String("origin", conn.Origin()), zap.String("destination", conn.Destination()),
		zap.Int("routes", d.Len()), zap.Duration("latency", time.Since(start)))
	return d, nil
}

func (c *GoogleClient) query(conn ConnInfo, departure, arrival time.Time) url.Values {
	q := url.Values{}
	q.Set("origin", endpoint(conn.FromGeo, conn.Origin()))
	q.Set("destination", endpoint(conn.ToGeo, conn.Destination()))
	q.Set("mode", "transit")
	q.Set("alternatives", "true")
	switch {
	case !arrival.IsZero():
		q.Set("arrival_time", strconv.FormatInt(arrival.Unix(), 10))
	case !departure.IsZero():
		q.Set("departure_time", strconv.FormatInt(departure.Unix(), 10))
	default:
		q.Set("departure_time", strconv.FormatInt(c.now().Unix(), 10))
	}
	if m := transitMode(conn.Vehicle); m != "" {
		q.Set("transit_mode", m)
	}
	if Set(conn.MaxTransfers) {
		q.Set("transit_routing_preference", "fewer_transfers")
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	return q
}

func endpoint(g *Geo, name string) string {
	if g != nil {
		return strconv.FormatFloat(g.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(g.Lon, 'f', 6, 64)
	}
	return name
}

func transitMode(vehicle string) string {
	switch vehicle {
	case "bus":
		return "bus"
	case "subway":
		return "subway"
	case "tram", "monorail", "cable_car":
		return "tram"
	case "train":
		return "train"
	}
	return ""
}

type googleValue struct {
	Value int64 `json:"value"`
}

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []struct {
			Distance googleValue `json:"distance"`
			Duration googleValue `json:"duration"`
			Steps    []struct {
				TravelMode     string      `json:"travel_mode"`
				Distance       googleValue `json:"distance"`
				Duration       googleValue `json:"duration"`
				TransitDetails *struct {
					DepartureStop struct {
						Name string `json:"name"`
					} `json:"departure_stop"`
					ArrivalStop struct {
						Name string `json:"name"`
					} `json:"arrival_stop"`
					DepartureTime googleValue `json:"departure_time"`
					ArrivalTime   googleValue `json:"arrival_time"`
					Headsign      string      `json:"headsign"`
					NumStops      int         `json:"num_stops"`
					Line          struct {
						Name      string `json:"name"`
						ShortName string `json:"short_name"`
						Vehicle   struct {
							Type string `json:"type"`
							Name string `json:"name"`
						} `json:"vehicle"`
					} `json:"line"`
				} `json:"transit_details"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// ParseGoogle converts a Google Directions JSON body into Directions and
// applies the vehicle and transfer filters of conn.
func ParseGoogle(body []byte, conn ConnInfo, loc *time.Location) (*Directions, error) {
	var gr googleResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return &Directions{Conn: conn}, fmt.Errorf("google directions: decode: %w", err)
	}
	switch gr.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return &Directions{Conn: conn}, nil
	default:
		return &Directions{Conn: conn}, fmt.Errorf("google directions: status %s: %s", gr.Status, gr.ErrorMessage)
	}
	if loc == nil {
		loc = time.UTC
	}

	d := &Directions{Conn: conn}
	for _, gro := range gr.Routes {
		var r Route
		for _, gl := range gro.Legs {
			leg := Leg{Distance: int(gl.Distance.Value), Duration: seconds(gl.Duration.Value)}
			for _, gs := range gl.Steps {
				st := Step{
					Mode:     TravelMode(gs.TravelMode),
					Distance: int(gs.Distance.Value),
					Duration: seconds(gs.Duration.Value),
				}
				if td := gs.TransitDetails; st.Mode == ModeTransit && td != nil {
					st.DepartureStop = td.DepartureStop.Name
					st.ArrivalStop = td.ArrivalStop.Name
					st.DepartureTime = time.Unix(td.DepartureTime.Value, 0).In(loc)
					st.ArrivalTime = time.Unix(td.ArrivalTime.Value, 0).In(loc)
					st.Headsign = td.Headsign
					st.NumStops = td.NumStops
					st.LineName = td.Line.ShortName
					if st.LineName == "" {
						st.LineName = td.Line.Name
					}
					st.Vehicle = VehicleFromGoogle(td.Line.Vehicle.Type)
				}
				leg.Steps = append(leg.Steps, st)
			}
			r.Legs = append(r.Legs, leg)
		}
		if Keep(r, conn) {
			d.Routes = append(d.Routes, r)
		}
	}
	return d, nil
}

func seconds(v int64) time.Duration { return time.Duration(v) * time.Second }

// VehicleFromGoogle maps a Google vehicle type to an ontology vehicle value.
func VehicleFromGoogle(t string) string {
	switch t {
	case "RAIL", "HEAVY_RAIL", "COMMUTER_TRAIN", "HIGH_SPEED_TRAIN", "LONG_DISTANCE_TRAIN":
		return "train"
	case "METRO_RAIL", "SUBWAY":
		return "subway"
	case "TRAM":
		return "tram"
	case "MONORAIL":
		return "monorail"
	case "BUS", "INTERCITY_BUS", "TROLLEYBUS", "SHARE_TAXI":
		return "bus"
	case "FERRY":
		return "ferry"
	case "CABLE_CAR", "GONDOLA_LIFT", "FUNICULAR":
		return "cable_car"
	}
	return strings.ToLower(t)
}

// Keep reports whether a route satisfies the vehicle and max-transfers
// constraints of conn.
func Keep(r Route, conn ConnInfo) bool {
	if Set(conn.Vehicle) {
		for _, s := range r.TransitSteps() {
			if s.Vehicle != conn.Vehicle {
				return false
			}
		}
	}
	if Set(conn.MaxTransfers) {
		if n, err := strconv.Atoi(conn.MaxTransfers); err == nil && r.NumTransfers() > n {
			return false
		}
	}
	return true
}
