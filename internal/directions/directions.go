// Package directions defines transit route data and the providers that
// produce it.
package directions

import (
	"context"
	"strings"
	"time"
)

// TravelMode distinguishes transit and walking steps.
type TravelMode string

const (
	ModeTransit TravelMode = "TRANSIT"
	ModeWalking TravelMode = "WALKING"
)

// Geo is a longitude/latitude pair.
type Geo struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// ConnInfo describes a connection query. Unset fields hold "", "none",
// "dontcare" or "__ANY__".
type ConnInfo struct {
	FromCity     string `json:"from_city"`
	FromStop     string `json:"from_stop"`
	ToCity       string `json:"to_city"`
	ToStop       string `json:"to_stop"`
	Vehicle      string `json:"vehicle"`
	MaxTransfers string `json:"max_transfers"`
	FromGeo      *Geo   `json:"from_geo,omitempty"`
	ToGeo        *Geo   `json:"to_geo,omitempty"`
}

// Set reports whether a ConnInfo field carries a concrete value.
func Set(v string) bool {
	switch v {
	case "", "none", "*", "dontcare", "__ANY__":
		return false
	}
	return true
}

// Origin is the textual origin sent to a provider.
func (c ConnInfo) Origin() string { return place(c.FromStop, c.FromCity) }

// Destination is the textual destination sent to a provider.
func (c ConnInfo) Destination() string { return place(c.ToStop, c.ToCity) }

func place(stop, city string) string {
	parts := make([]string, 0, 2)
	if Set(stop) {
		parts = append(parts, stop)
	}
	if Set(city) && city != stop {
		parts = append(parts, city)
	}
	return strings.Join(parts, ", ")
}

// Step is one segment of a leg. Transit fields are empty for walking steps.
type Step struct {
	Mode          TravelMode
	DepartureStop string
	ArrivalStop   string
	DepartureTime time.Time
	ArrivalTime   time.Time
	Vehicle       string
	LineName      string
	Headsign      string
	NumStops      int
	Duration      time.Duration
	Distance      int
}

// Leg is a sequence of steps between two waypoints.
type Leg struct {
	Steps    []Step
	Distance int
	Duration time.Duration
}

// Route is one alternative returned by a provider.
type Route struct {
	Legs []Leg
}

// TransitSteps returns the transit steps of all legs in order.
func (r Route) TransitSteps() []Step {
	var out []Step
	for _, l := range r.Legs {
		for _, s := range l.Steps {
			if s.Mode == ModeTransit {
				out = append(out, s)
			}
		}
	}
	return out
}

// NumTransfers is the number of changes between vehicles.
func (r Route) NumTransfers() int {
	n := len(r.TransitSteps()) - 1
	if n < 0 {
		return 0
	}
	return n
}

// Distance in meters over all legs.
func (r Route) Distance() int {
	var d int
	for _, l := range r.Legs {
		d += l.Distance
	}
	return d
}

// Directions is a provider answer for one ConnInfo.
type Directions struct {
	Conn   ConnInfo
	Routes []Route
}

// Len is the number of routes; nil directions have none.
func (d *Directions) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Routes)
}

// Finder retrieves directions. Exactly one of departure and arrival may be
// non-zero; both zero means leave now. On failure implementations return
// empty directions together with the error.
type Finder interface {
	Directions(ctx context.Context, conn ConnInfo, departure, arrival time.Time) (*Directions, error)
}
