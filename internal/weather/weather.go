// Package weather retrieves current conditions and forecasts.
package weather

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoForecast is returned when the provider has no forecast covering the
// requested time.
var ErrNoForecast = errors.New("weather: no forecast for requested time")

// Query selects a place and time. A zero Time asks for current conditions.
// Geo coordinates take precedence over City/State.
type Query struct {
	Time  time.Time
	Daily bool
	City  string
	State string
	Lon   *float64
	Lat   *float64
}

// Weather is a provider answer. Temperatures are rounded degrees Celsius;
// MinTemp and MaxTemp are only meaningful when Daily is set.
type Weather struct {
	Condition string
	Temp      int
	MinTemp   int
	MaxTemp   int
	Daily     bool
}

func (w Weather) String() string {
	if w.Daily {
		return fmt.Sprintf("%s, %d to %d °C", w.Condition, w.MinTemp, w.MaxTemp)
	}
	return fmt.Sprintf("%s, %d °C", w.Condition, w.Temp)
}

// Finder retrieves weather. Implementations return a nil Weather and an
// error on failure.
type Finder interface {
	Weather(ctx context.Context, q Query) (*Weather, error)
}

// DailyHour is the local hour a daily forecast is read at.
const DailyHour = 13

// At returns the instant a forecast is read for: t itself for hourly
// queries, DailyHour on t's date for daily ones.
func (q Query) At() time.Time {
	if q.Daily && !q.Time.IsZero() {
		y, m, d := q.Time.Date()
		return time.Date(y, m, d, DailyHour, 0, 0, 0, q.Time.Location())
	}
	return q.Time
}

// Condition maps an OpenWeatherMap condition code to a spoken phrase.
func Condition(code int) string {
	if c, ok := conditions[code]; ok {
		return c
	}
	switch code / 100 {
	case 2:
		return "thunderstorm"
	case 3:
		return "drizzle"
	case 5:
		return "rain"
	case 6:
		return "snow"
	case 7:
		return "mist"
	case 8:
		return "clouds"
	case 9:
		return "extreme weather"
	}
	return "unknown weather"
}

var conditions = map[int]string{
	200: "thunderstorm with light rain",
	201: "thunderstorm with rain",
	202: "thunderstorm with heavy rain",
	211: "thunderstorm",
	212: "heavy thunderstorm",
	300: "light drizzle",
	301: "drizzle",
	302: "heavy drizzle",
	500: "light rain",
	501: "moderate rain",
	502: "heavy rain",
	503: "very heavy rain",
	511: "freezing rain",
	520: "light showers",
	521: "showers",
	522: "heavy showers",
	600: "light snow",
	601: "snow",
	602: "heavy snow",
	611: "sleet",
	621: "snow showers",
	701: "mist",
	711: "smoke",
	721: "haze",
	741: "fog",
	781: "tornado",
	800: "clear sky",
	801: "few clouds",
	802: "scattered clouds",
	803: "broken clouds",
	804: "overcast",
}
