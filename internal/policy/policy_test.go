package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pti/dm/internal/belief"
	"pti/dm/internal/config"
	"pti/dm/internal/dialogueact"
	"pti/dm/internal/directions"
	"pti/dm/internal/ontology"
	"pti/dm/internal/tracker"
	"pti/dm/internal/weather"
)

// fixedRNG always draws the same number, capped to the range.
type fixedRNG int

func (r fixedRNG) Intn(n int) int {
	if int(r) >= n {
		return n - 1
	}
	return int(r)
}

// seqRNG draws its values in order and then zeros.
type seqRNG struct{ vals []int }

func (r *seqRNG) Intn(n int) int {
	if len(r.vals) == 0 {
		return 0
	}
	v := r.vals[0]
	r.vals = r.vals[1:]
	return v % n
}

type fakeDirections struct {
	result *directions.Directions
	err    error
	calls  []directions.ConnInfo
}

func (f *fakeDirections) Directions(_ context.Context, conn directions.ConnInfo, _, _ time.Time) (*directions.Directions, error) {
	f.calls = append(f.calls, conn)
	if f.err != nil {
		return &directions.Directions{Conn: conn}, f.err
	}
	d := *f.result
	d.Conn = conn
	return &d, nil
}

type fakeWeather struct {
	result  *weather.Weather
	queries []weather.Query
}

func (f *fakeWeather) Weather(_ context.Context, q weather.Query) (*weather.Weather, error) {
	f.queries = append(f.queries, q)
	if f.result == nil {
		return nil, errors.New("provider down")
	}
	return f.result, nil
}

type harness struct {
	t    *testing.T
	ont  *ontology.Ontology
	tr   *tracker.Tracker
	bs   *belief.State
	pol  *Policy
	dirs *fakeDirections
	wx   *fakeWeather
	now  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ont, err := ontology.Default()
	require.NoError(t, err)
	now := time.Date(2014, 6, 1, 10, 30, 0, 0, ont.Location())
	h := &harness{
		t:    t,
		ont:  ont,
		tr:   tracker.New(ont, 0.8, nil),
		bs:   belief.NewState(ont),
		dirs: &fakeDirections{result: twoRoutes(ont.Location())},
		wx:   &fakeWeather{result: &weather.Weather{Condition: "clear sky", Temp: 21, MinTemp: 15, MaxTemp: 24}},
		now:  now,
	}
	h.pol = New(Options{
		Dialogue:          config.DefaultDialogue(),
		Ontology:          ont,
		Directions:        h.dirs,
		Weather:           h.wx,
		InferDefaultStops: true,
		Now:               func() time.Time { return now },
		Rand:              fixedRNG(1),
	})
	return h
}

func twoRoutes(loc *time.Location) *directions.Directions {
	at := func(h, m int) time.Time { return time.Date(2014, 6, 1, h, m, 0, 0, loc) }
	return &directions.Directions{Routes: []directions.Route{
		{Legs: []directions.Leg{{Distance: 8047, Steps: []directions.Step{
			{Mode: directions.ModeWalking, Distance: 200},
			{
				Mode: directions.ModeTransit, Vehicle: "subway", LineName: "2", Headsign: "Flatbush Avenue",
				DepartureStop: "Central Park", ArrivalStop: "Wall Street",
				DepartureTime: at(11, 0), ArrivalTime: at(11, 25), NumStops: 9, Distance: 7647,
			},
			{Mode: directions.ModeWalking, Distance: 200},
		}}}},
		{Legs: []directions.Leg{{Steps: []directions.Step{
			{
				Mode: directions.ModeTransit, Vehicle: "bus", LineName: "M7", Headsign: "Union Square",
				DepartureStop: "Central Park", ArrivalStop: "Times Square",
				DepartureTime: at(10, 45), ArrivalTime: at(11, 0), NumStops: 6, Distance: 2500,
			},
			{
				Mode: directions.ModeTransit, Vehicle: "subway", LineName: "3", Headsign: "New Lots Avenue",
				DepartureStop: "Times Square", ArrivalStop: "Wall Street",
				DepartureTime: at(11, 5), ArrivalTime: at(11, 30), NumStops: 8, Distance: 5500,
			},
		}}}},
	}}
}

// say feeds one user turn and returns the system answer.
func (h *harness) say(s string) dialogueact.DialogueAct {
	h.t.Helper()
	cn := dialogueact.NewConfusionNetwork()
	if s != "" {
		var errs []error
		cn, errs = dialogueact.ParseConfusionNetwork(s)
		require.Empty(h.t, errs)
	}
	h.tr.Update(h.bs, cn, h.pol.History())
	return h.pol.Decide(context.Background(), h.bs)
}

func assertDA(t *testing.T, want string, got dialogueact.DialogueAct) {
	t.Helper()
	assert.Equal(t, dialogueact.MustParse(want).Sort().String(), got.Sort().String())
}

const (
	firstSteps = `inform(vehicle="subway")&inform(line="2")&inform(departure_time="11:00")&` +
		`inform(enter_at="Central Park")&inform(headsign="Flatbush Avenue")&inform(exit_at="Wall Street")`
	firstRoute  = `inform(found_directions="true")&inform(alternative="first")&` + firstSteps
	secondRoute = `inform(alternative="second")&` +
		`inform(vehicle="bus")&inform(line="M7")&inform(departure_time="10:45")&` +
		`inform(enter_at="Central Park")&inform(headsign="Union Square")&inform(exit_at="Times Square")&` +
		`inform(transfer="true")&inform(vehicle="subway")&inform(line="3")&inform(departure_time="11:05")&` +
		`inform(headsign="New Lots Avenue")&inform(exit_at="Wall Street")`
	bothStops = `0.9 inform(from_stop="Central Park"); 0.9 inform(to_stop="Wall Street")`
)

// withRoutes greets and then asks for the connection between both stops.
func (h *harness) withRoutes() dialogueact.DialogueAct {
	h.t.Helper()
	assertDA(h.t, "hello()", h.say(""))
	return h.say(bothStops)
}

func TestHelloOnFirstTurn(t *testing.T) {
	h := newHarness(t)
	assertDA(t, "hello()", h.say(""))
	require.Len(t, h.pol.History(), 1)
}

func TestRequestOriginFirst(t *testing.T) {
	h := newHarness(t)
	h.say("")
	assertDA(t, "request(from_stop)", h.say(`1.0 inform(task="find_connection")`))
}

func TestRequestDepartureTimeOneInTen(t *testing.T) {
	h := newHarness(t)
	h.say("")
	h.pol.rng = fixedRNG(0)
	assertDA(t, "request(departure_time)", h.say(`1.0 inform(task="find_connection")`))
}

func TestRequestDestination(t *testing.T) {
	h := newHarness(t)
	h.say("")
	assertDA(t, `iconfirm(from_stop="Central Park")&request(to_stop)`,
		h.say(`1.0 inform(from_stop="Central Park")`))
}

func TestInferCitiesAndNarrate(t *testing.T) {
	h := newHarness(t)
	got := h.withRoutes()

	assertDA(t, `iconfirm(from_stop="Central Park")&iconfirm(to_stop="Wall Street")&`+firstRoute, got)

	require.Len(t, h.dirs.calls, 1)
	conn := h.dirs.calls[0]
	assert.Equal(t, "New York", conn.FromCity)
	assert.Equal(t, "New York", conn.ToCity)
	assert.Equal(t, "Central Park", conn.FromStop)
	assert.Equal(t, "Wall Street", conn.ToStop)
	require.NotNil(t, conn.FromGeo)
	assert.InDelta(t, 40.7829, conn.FromGeo.Lat, 1e-9)
	assert.Equal(t, conn, *h.bs.ConnInfo)

	i, ok := h.bs.RouteAlternative()
	assert.True(t, ok)
	assert.Equal(t, 0, i)
}

func TestConfirmOnSilence(t *testing.T) {
	h := newHarness(t)
	h.say("")
	cn, errs := dialogueact.ParseConfusionNetwork(`0.6 inform(from_stop="Astor Place")`)
	require.Empty(t, errs)
	h.tr.Update(h.bs, cn, h.pol.History())
	assertDA(t, `confirm(from_stop="Astor Place")`, h.say(`1.0 silence()`))
}

func TestSilence(t *testing.T) {
	h := newHarness(t)
	h.say("")
	assertDA(t, "silence()", h.say(`1.0 silence()`))
	assertDA(t, `inform(silence_timeout="true")`, h.say(`1.0 silence(time="5")`))
}

func TestAlternativeNavigation(t *testing.T) {
	h := newHarness(t)
	h.withRoutes()

	got := h.say(`1.0 inform(alternative="next")`)
	assertDA(t, `inform(found_directions="next")&`+secondRoute, got)
	i, _ := h.bs.RouteAlternative()
	assert.Equal(t, 1, i)

	assertDA(t, `inform(found_directions="no_next")`, h.say(`1.0 inform(alternative="next")`))
	i, _ = h.bs.RouteAlternative()
	assert.Equal(t, 1, i)

	assertDA(t, `inform(found_directions="prev")&inform(alternative="first")&`+firstSteps,
		h.say(`1.0 inform(alternative="prev")`))
	require.Len(t, h.dirs.calls, 1, "navigation reuses the routes found")
}

func TestAlternativeByNumber(t *testing.T) {
	h := newHarness(t)
	h.withRoutes()
	assertDA(t, `inform(found_directions="true")&`+secondRoute, h.say(`1.0 inform(alternative="2")`))
	assertDA(t, `inform(found_directions="no_true")`, h.say(`1.0 inform(alternative="4")`))
}

func TestAlternativeWithRequestKeepsSelection(t *testing.T) {
	h := newHarness(t)
	h.withRoutes()
	got := h.say(`1.0 inform(alternative="next"); 1.0 request(departure_time)`)
	assertDA(t, `inform(alternative="second")&inform(from_stop="Central Park")&inform(vehicle="bus")&inform(departure_time="10:45")`, got)
	i, _ := h.bs.RouteAlternative()
	assert.Equal(t, 0, i)
}

func TestReqaltsCycles(t *testing.T) {
	h := newHarness(t)
	h.withRoutes()
	assertDA(t, `inform(found_directions="true")&`+secondRoute, h.say(`1.0 reqalts()`))
	assertDA(t, firstRoute, h.say(`1.0 reqalts()`))
	i, _ := h.bs.RouteAlternative()
	assert.Equal(t, 0, i)
}

func TestReqaltsWithoutRoute(t *testing.T) {
	h := newHarness(t)
	h.say("")
	assertDA(t, "request(from_stop)", h.say(`1.0 reqalts()`))
}

func TestRequestedRouteFacts(t *testing.T) {
	tests := []struct {
		req  string
		want string
	}{
		{"departure_time", `inform(from_stop="Central Park")&inform(vehicle="subway")&inform(departure_time="11:00")`},
		{"departure_time_rel", `inform(from_stop="Central Park")&inform(vehicle="subway")&inform(departure_time_rel="0:30")`},
		{"arrival_time", `inform(to_stop="Wall Street")&inform(vehicle="subway")&inform(arrival_time="11:25")`},
		{"arrival_time_rel", `inform(to_stop="Wall Street")&inform(vehicle="subway")&inform(arrival_time_rel="0:55")`},
		{"duration", `inform(duration="0:25")`},
		{"num_transfers", `inform(num_transfers="0")`},
		{"time_transfers", `inform(num_transfers="0")`},
		{"distance", `inform(distance="5.0")&inform(num_stops="9")&inform(from_stop="Central Park")&inform(vehicle="subway")&inform(line="2")`},
	}
	for _, tt := range tests {
		t.Run(tt.req, func(t *testing.T) {
			h := newHarness(t)
			h.withRoutes()
			assertDA(t, tt.want, h.say(`1.0 request(`+tt.req+`)`))
			assert.False(t, h.bs.SlotsBeingRequested(0.8).Has(tt.req), "request is cleared once answered")
		})
	}
}

func TestTransfersOnSecondRoute(t *testing.T) {
	h := newHarness(t)
	h.withRoutes()
	h.say(`1.0 reqalts()`)
	assertDA(t, `inform(num_transfers="1")`, h.say(`1.0 request(num_transfers)`))
	assertDA(t, `inform(time_transfers_stop="Times Square")&inform(time_transfers_limit="0:05")`,
		h.say(`1.0 request(time_transfers)`))
}

func TestMissedConnection(t *testing.T) {
	h := newHarness(t)
	h.withRoutes()
	h.say(`1.0 reqalts()`)
	h.pol.now = func() time.Time { return h.now.Add(20 * time.Minute) }
	assertDA(t, `inform(vehicle="bus")&apology()&inform(missed_connection="true")`, h.say(`1.0 request(departure_time_rel)`))
}

func TestRequestWithoutRoute(t *testing.T) {
	h := newHarness(t)
	h.say("")
	assertDA(t, `inform(stops_conflict="no_stops")&help(inform="from_stop")`, h.say(`1.0 request(duration)`))
}

func TestConfirmedReplies(t *testing.T) {
	h := newHarness(t)
	h.withRoutes()
	assertDA(t, `affirm()&inform(from_stop="Central Park")`, h.say(`1.0 confirm(from_stop="Central Park")`))
	assertDA(t, `negate()&deny(from_stop="Times Square")&inform(from_stop="Central Park")`,
		h.say(`1.0 confirm(from_stop="Times Square")`))
}

func TestSameStops(t *testing.T) {
	h := newHarness(t)
	h.say("")
	got := h.say(`1.0 inform(from_stop="Central Park"); 1.0 inform(to_stop="Central Park")`)
	assertDA(t, `apology()&inform(stops_conflict="thesame")&inform(from_stop="Central Park")&inform(to_stop="Central Park")`, got)
	assert.Empty(t, h.dirs.calls)
}

func TestProviderFailureEchoesQuery(t *testing.T) {
	h := newHarness(t)
	h.dirs.err = errors.New("timeout")
	got := h.withRoutes()
	assertDA(t, `apology()&inform(from_stop="Central Park")&inform(to_stop="Wall Street")`, got)
	_, ok := h.bs.RouteAlternative()
	assert.False(t, ok)
}

func TestLudaitActions(t *testing.T) {
	tests := []struct {
		user string
		want string
	}{
		{`1.0 null()`, `notunderstood()&help(inform="from_stop")`},
		{`1.0 repeat()`, `irepeat()`},
		{`1.0 restart()`, `restart()&hello()`},
		{`1.0 thankyou()`, `inform(cordiality="true")&hello()`},
		{`1.0 bye()`, `bye()`},
		{`1.0 help()`, `help(repeat)`},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			h := newHarness(t)
			h.say("")
			assertDA(t, tt.want, h.say(tt.user))
		})
	}
}

func TestRestartWipesBelief(t *testing.T) {
	h := newHarness(t)
	h.withRoutes()
	h.say(`1.0 restart()`)
	assert.Equal(t, ontology.None, h.bs.MPV("from_stop"))
	_, ok := h.bs.RouteAlternative()
	assert.False(t, ok)
}

func TestTooLong(t *testing.T) {
	h := newHarness(t)
	h.pol.cfg.MaxTurns = 1
	assertDA(t, "hello()", h.say(""))
	assertDA(t, `bye()&inform(toolong="true")`, h.say(`1.0 inform(task="find_connection")`))
}

func TestCurrentTime(t *testing.T) {
	h := newHarness(t)
	h.say("")
	assertDA(t, `inform(current_time="10:30")&iconfirm(in_state="New York")`, h.say(`1.0 request(current_time)`))

	h = newHarness(t)
	h.say("")
	assertDA(t, `apology()&inform(in_state="Massachusetts")&inform(current_time="10:30")&iconfirm(in_state="New York")`,
		h.say(`1.0 request(current_time); 1.0 inform(in_state="Massachusetts")`))
}

func TestWeatherNow(t *testing.T) {
	h := newHarness(t)
	h.say("")
	got := h.say(`1.0 inform(task="weather")`)
	assertDA(t, `inform(time_rel="now")&inform(temperature="21")&inform(weather_condition="clear sky")`, got)

	require.Len(t, h.wx.queries, 1)
	q := h.wx.queries[0]
	assert.Equal(t, "New York", q.City)
	assert.Equal(t, "New York", q.State)
	assert.True(t, q.Time.IsZero())
	require.NotNil(t, q.Lat)
	assert.InDelta(t, 40.7128, *q.Lat, 1e-9)
}

func TestWeatherTomorrowIsDaily(t *testing.T) {
	h := newHarness(t)
	h.say("")
	got := h.say(`1.0 inform(task="weather"); 1.0 inform(date_rel="tomorrow")`)
	assertDA(t, `inform(date_rel="tomorrow")&inform(min_temperature="15")&inform(max_temperature="24")&inform(weather_condition="clear sky")`, got)

	q := h.wx.queries[0]
	assert.True(t, q.Daily)
	assert.Equal(t, 2, q.Time.Day())
}

func TestWeatherCityStateConflict(t *testing.T) {
	h := newHarness(t)
	h.say("")
	got := h.say(`1.0 inform(task="weather"); 1.0 inform(in_city="Boston"); 1.0 inform(in_state="New York")`)
	assertDA(t, `apology()&inform(cities_conflict="incompatible")&inform(in_city="Boston")&inform(in_state="New York")`, got)
	assert.Empty(t, h.wx.queries)
}

func TestWeatherSharedCityNeedsState(t *testing.T) {
	h := newHarness(t)
	h.say("")
	got := h.say(`1.0 inform(task="weather"); 1.0 inform(in_city="Springfield")`)
	assertDA(t, `iconfirm(in_city="Springfield")&request(in_state)`, got)
}

func TestWeatherFailure(t *testing.T) {
	h := newHarness(t)
	h.wx.result = nil
	h.say("")
	assertDA(t, `apology()&inform(in_city="New York")&inform(in_state="New York")`, h.say(`1.0 inform(task="weather")`))
}

func TestFilterIconfirms(t *testing.T) {
	da := dialogueact.MustParse(`iconfirm(from_stop="Central Park")&inform(from_stop="Central Park")&` +
		`iconfirm(to_city="New York")&iconfirm(to_city="New York")&iconfirm(vehicle="*")&` +
		`iconfirm(in_state="Boston")&inform(in_city="Boston")&iconfirm(to_stop="Boston")&iconfirm(to_city="Boston")`)

	once := FilterIconfirms(da)
	assertDA(t, `inform(from_stop="Central Park")&iconfirm(to_city="New York")&inform(in_city="Boston")&iconfirm(to_city="Boston")`, once)
	assert.Equal(t, once.String(), FilterIconfirms(once).String())
}

func TestBackoff(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		draws []int
		want  string
	}{
		{[]int{1, 0}, "reqmore()"},
		{[]int{1, 1, 0}, "notunderstood()"},
		{[]int{1, 1, 1, 0}, "irepeat()"},
		{[]int{1, 1, 1, 1}, "silence()"},
		{[]int{0, 0}, `help(task="weather")`},
	}
	for _, tt := range tests {
		h.pol.rng = &seqRNG{vals: tt.draws}
		assertDA(t, tt.want, h.pol.backoff(h.bs))
	}
}

func TestOrdinal(t *testing.T) {
	assert.Equal(t, "first", ordinal(1))
	assert.Equal(t, "tenth", ordinal(10))
	assert.Equal(t, "12th", ordinal(12))
}

func TestMinimalInfo(t *testing.T) {
	got := minimalInfo(directions.ConnInfo{
		FromCity: "Boston", FromStop: "South Station", ToCity: "New York", ToStop: ontology.Any,
		Vehicle: "bus", MaxTransfers: ontology.None,
	})
	assertDA(t, `inform(from_city="Boston")&inform(from_stop="South Station")&inform(to_city="New York")&inform(vehicle="bus")`, got)
}

func TestOutboundActsDoNotRepeatInforms(t *testing.T) {
	h := newHarness(t)
	got := h.withRoutes()
	assert.Equal(t, FilterIconfirms(got).String(), got.String())
}
