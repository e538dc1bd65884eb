package policy

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"pti/dm/internal/belief"
	"pti/dm/internal/dialogueact"
	"pti/dm/internal/directions"
	"pti/dm/internal/ontology"
	"pti/dm/internal/resolver"
)

func (p *Policy) connectionTopic(t *turn) dialogueact.DialogueAct {
	bs := t.bs
	switch {
	case t.ludait == "reqalts":
		bs.LUDAIT.Reset()
		return p.nextAlternative(t)

	case t.accepted.Has("alternative"):
		da := p.requestedAlternative(t)
		bs.Slot("alternative").Value.Reset()
		return da

	case len(t.requested) > 0:
		return p.requestedInfo(t)

	case len(t.confirmed) > 0:
		return p.confirmedInfo(t)
	}

	g := p.gatherConnection(t)
	if len(g.request) > 0 {
		return g.request
	}
	if !t.stateChanged {
		return p.backoff(bs)
	}
	da := g.iconfirm
	da.Extend(p.findDirections(t, g.conn))
	return da
}

// gathered is the outcome of collecting the connection endpoints: either a
// request for the missing slot or a complete query.
type gathered struct {
	request  dialogueact.DialogueAct
	iconfirm dialogueact.DialogueAct
	conn     directions.ConnInfo
}

func set(v string) bool { return v != "" && v != ontology.None && v != ontology.DontCare }

func (p *Policy) gatherConnection(t *turn) gathered {
	from := resolver.Endpoint{Stop: t.acceptedMPV("from_stop"), City: t.acceptedMPV("from_city")}
	to := resolver.Endpoint{Stop: t.acceptedMPV("to_stop"), City: t.acceptedMPV("to_city")}
	from, to = resolver.ResolveCities(p.ont, from, to)

	if !p.inferDefaultStops {
		if resolver.Known(from.Stop) && !set(from.City) {
			from.City = ontology.Any
		}
		if resolver.Known(to.Stop) && !set(to.City) {
			to.City = ontology.Any
		}
	}

	defaultCity := p.ont.DefaultValue("in_city")
	hasFromPlace := resolver.Known(from.Stop) || (resolver.Known(from.City) && from.City != defaultCity)
	hasToPlace := resolver.Known(to.Stop) || (resolver.Known(to.City) && to.City != defaultCity)
	hasFromArea := set(from.City)
	hasToArea := set(to.City)
	// city to city, one of which may be the default city
	if hasFromArea && hasToArea && from.City != to.City {
		hasFromPlace, hasToPlace = true, true
	}

	var g gathered
	nothingKnown := !(hasFromPlace && hasFromArea) && !(hasToPlace && hasToArea)
	switch {
	case nothingKnown && !t.accepted.Has("departure_time") && !t.accepted.Has("time") && p.randbool(10):
		g.request.Add("request", "departure_time", "")
	case !hasFromPlace:
		g.request.Add("request", "from_stop", "")
	case !hasToPlace:
		g.request.Add("request", "to_stop", "")
	case !hasFromArea:
		g.request.Add("request", "from_city", "")
	case !hasToArea:
		g.request.Add("request", "to_city", "")
	}
	if len(g.request) > 0 {
		return g
	}

	if (from.Inferred || to.Inferred) && from.City != to.City {
		if resolver.Known(to.City) {
			g.iconfirm.Add("iconfirm", "to_city", to.City)
		}
		if resolver.Known(from.City) {
			g.iconfirm.Add("iconfirm", "from_city", from.City)
		}
	}

	g.conn = directions.ConnInfo{
		FromCity:     from.City,
		FromStop:     p.endpointStop(from),
		ToCity:       to.City,
		ToStop:       p.endpointStop(to),
		Vehicle:      t.acceptedMPV("vehicle"),
		MaxTransfers: t.acceptedMPV("max_transfers"),
		FromGeo:      p.stopGeo(from.Stop),
		ToGeo:        p.stopGeo(to.Stop),
	}
	return g
}

// endpointStop is the stop sent to the provider for a city-only endpoint:
// the city's default stop when it can be inferred, else the any sentinel.
func (p *Policy) endpointStop(e resolver.Endpoint) string {
	if resolver.Known(e.Stop) {
		return e.Stop
	}
	if !p.inferDefaultStops {
		return ontology.Any
	}
	if resolver.Known(e.City) {
		return resolver.DefaultStop(p.ont, e.City)
	}
	return ontology.None
}

// stopGeo returns coordinates for stops that exist in a single city; a name
// shared by several cities is sent as text.
func (p *Policy) stopGeo(stop string) *directions.Geo {
	if !resolver.Known(stop) || len(p.ont.CompatibleValues("stop_city", stop)) != 1 {
		return nil
	}
	g, ok := p.ont.Geo("stop", stop)
	if !ok {
		return nil
	}
	return &directions.Geo{Lon: g.Lon, Lat: g.Lat}
}

// directionsConflict reports origin equal to destination and stops that do
// not belong to their city.
func (p *Policy) directionsConflict(c directions.ConnInfo) dialogueact.DialogueAct {
	if c.FromCity == c.ToCity && (c.FromStop == c.ToStop || !resolver.Known(c.FromStop)) {
		da := dialogueact.MustParse(`apology()&inform(stops_conflict="thesame")`)
		da.Extend(minimalInfo(c))
		return da
	}
	check := func(prefix, city, stop string) dialogueact.DialogueAct {
		if !resolver.Known(city) || !resolver.Known(stop) || len(p.ont.CompatibleValues("stop_city", stop)) == 0 {
			return nil
		}
		if p.ont.IsCompatible("city_stop", city, stop) {
			return nil
		}
		da := dialogueact.MustParse(`apology()&inform(stops_conflict="incompatible")`)
		da.Add("inform", prefix+"_city", city)
		da.Add("inform", prefix+"_stop", stop)
		return da
	}
	if da := check("from", c.FromCity, c.FromStop); da != nil {
		return da
	}
	return check("to", c.ToCity, c.ToStop)
}

// travelTimes resolves the departure or the arrival time of the query.
func (p *Policy) travelTimes(bs *belief.State) (departure, arrival time.Time) {
	now := p.clock()
	if set(bs.MPV("arrival_time")) || set(bs.MPV("arrival_time_rel")) {
		arrival, _ = resolver.Interpret(now, resolver.TimeSlots{
			Abs:     bs.MPV("arrival_time"),
			AMPM:    bs.MPV("ampm"),
			Rel:     bs.MPV("arrival_time_rel"),
			DateRel: bs.MPV("date_rel"),
			LTA:     bs.MPV("lta_arrival_time"),
		})
		return time.Time{}, arrival
	}
	or := func(a, b string) string {
		if set(bs.MPV(a)) {
			return bs.MPV(a)
		}
		return bs.MPV(b)
	}
	departure, _ = resolver.Interpret(now, resolver.TimeSlots{
		Abs:     or("departure_time", "time"),
		AMPM:    bs.MPV("ampm"),
		Rel:     or("departure_time_rel", "time_rel"),
		DateRel: bs.MPV("date_rel"),
		LTA:     or("lta_departure_time", "lta_time"),
	})
	return departure, time.Time{}
}

// findDirections checks the query, asks the provider and narrates the first
// route. The belief keeps the query and its result.
func (p *Policy) findDirections(t *turn, conn directions.ConnInfo) dialogueact.DialogueAct {
	bs := t.bs
	if da := p.directionsConflict(conn); da != nil {
		bs.SetDirections(nil, conn)
		return da
	}

	departure, arrival := p.travelTimes(bs)
	d, err := p.dirs.Directions(t.ctx, conn, departure, arrival)
	if err != nil {
		p.log.Warn("directions lookup failed", zap.Error(err),
			zap.String("origin", conn.Origin()), zap.String("destination", conn.Destination()))
	}
	if d == nil {
		d = &directions.Directions{Conn: conn}
	}
	bs.SetDirections(d, conn)
	return p.narrate(bs, "true")
}

// nextAlternative cycles through the routes found, or asks for the origin
// if nothing was searched yet.
func (p *Policy) nextAlternative(t *turn) dialogueact.DialogueAct {
	bs := t.bs
	i, ok := bs.RouteAlternative()
	if !ok {
		return dialogueact.MustParse("request(from_stop)")
	}
	bs.SetRouteAlternative((i + 1) % bs.Directions.Len())
	return p.narrate(bs, "true")
}

// requestedAlternative moves to the route named by the alternative slot. A
// move past either end leaves the selection and reports no_next or no_prev.
// When slots are requested too, they are answered for that route without
// moving the selection.
func (p *Policy) requestedAlternative(t *turn) dialogueact.DialogueAct {
	bs := t.bs
	cur, ok := bs.RouteAlternative()
	if !ok {
		p.discardRequests(t)
		return dialogueact.MustParse(`inform(stops_conflict="no_stops")`)
	}

	kind := bs.MPV("alternative")
	target := cur
	switch kind {
	case "next":
		target = cur + 1
	case "prev":
		target = cur - 1
	case "last", "dontcare", ontology.DontCare:
	default:
		n, err := strconv.Atoi(kind)
		if err != nil {
			p.discardRequests(t)
			return dialogueact.MustParse(`inform(found_directions="no_true")`)
		}
		target, kind = n-1, "true"
	}

	if target < 0 || target >= bs.Directions.Len() {
		p.discardRequests(t)
		return dialogueact.Of(dialogueact.NewItem("inform", "found_directions", "no_"+kind))
	}

	if len(t.requested) > 0 {
		da := dialogueact.Of(dialogueact.NewItem("inform", "alternative", ordinal(target+1)))
		da.Extend(p.answerRequests(t, &bs.Directions.Routes[target]))
		return da
	}
	bs.SetRouteAlternative(target)
	return p.narrate(bs, kind)
}

func (p *Policy) discardRequests(t *turn) {
	for _, name := range t.requested.Names() {
		t.bs.Slot(name).Requested.Reset()
	}
}

// routeSlots can only be answered from a route.
var routeSlots = map[string]bool{
	"from_stop": true, "to_stop": true,
	"departure_time": true, "departure_time_rel": true,
	"arrival_time": true, "arrival_time_rel": true,
	"duration": true, "num_transfers": true, "time_transfers": true, "distance": true,
}

func (p *Policy) requestedInfo(t *turn) dialogueact.DialogueAct {
	var route *directions.Route
	if i, ok := t.bs.RouteAlternative(); ok && i < t.bs.Directions.Len() {
		route = &t.bs.Directions.Routes[i]
	}
	return p.answerRequests(t, route)
}

// answerRequests informs about every requested slot and clears the
// requests. Without a route, route facts are answered with no_stops and a
// hint about the missing endpoint.
func (p *Policy) answerRequests(t *turn, route *directions.Route) dialogueact.DialogueAct {
	var da dialogueact.DialogueAct
	for _, slot := range t.requested.Names() {
		switch {
		case routeSlots[slot] && route != nil:
			da.Extend(p.routeFact(slot, *route))
		case routeSlots[slot]:
			da.Add("inform", "stops_conflict", "no_stops")
			if !t.accepted.Has("from_stop") {
				da.Add("help", "inform", "from_stop")
			} else if !t.accepted.Has("to_stop") {
				da.Add("help", "inform", "to_stop")
			}
		default:
			da.Add("inform", slot, t.requested[slot].MPV())
		}
		t.bs.Slot(slot).Requested.Reset()
	}
	return da
}

const metersPerMile = 1609.344

// routeFact answers one question about a route.
func (p *Policy) routeFact(slot string, r directions.Route) dialogueact.DialogueAct {
	var da dialogueact.DialogueAct
	transit := r.TransitSteps()
	if len(transit) == 0 {
		if slot == "duration" {
			var d time.Duration
			for _, l := range r.Legs {
				d += l.Duration
			}
			da.Add("inform", "duration", resolver.FormatDuration(atLeastMinute(d)))
		} else if slot == "distance" {
			da.Add("inform", "distance", miles(r.Distance()))
		} else {
			da.Add("inform", "num_transfers", "0")
		}
		return da
	}
	first, last := transit[0], transit[len(transit)-1]
	now := p.clock().Truncate(time.Minute)

	switch slot {
	case "from_stop":
		da.Add("inform", "from_stop", first.DepartureStop)
		da.Add("inform", "vehicle", first.Vehicle)
		da.Add("inform", "line", first.LineName)
		da.Add("inform", "headsign", first.Headsign)
	case "to_stop":
		da.Add("inform", "to_stop", last.ArrivalStop)
	case "departure_time":
		da.Add("inform", "from_stop", first.DepartureStop)
		da.Add("inform", "vehicle", first.Vehicle)
		da.Add("inform", "departure_time", hhmm(first.DepartureTime))
	case "departure_time_rel":
		da.Add("inform", "vehicle", first.Vehicle)
		rel := first.DepartureTime.Sub(now)
		switch {
		case rel < 0:
			da.Add("apology", "", "")
			da.Add("inform", "missed_connection", "true")
		case rel < time.Minute:
			da.Add("inform", "from_stop", first.DepartureStop)
			da.Add("inform", "departure_time_rel", "now")
		default:
			da.Add("inform", "from_stop", first.DepartureStop)
			da.Add("inform", "departure_time_rel", resolver.FormatDuration(rel))
		}
	case "arrival_time":
		da.Add("inform", "to_stop", last.ArrivalStop)
		da.Add("inform", "vehicle", last.Vehicle)
		da.Add("inform", "arrival_time", hhmm(last.ArrivalTime))
	case "arrival_time_rel":
		da.Add("inform", "to_stop", last.ArrivalStop)
		da.Add("inform", "vehicle", last.Vehicle)
		rel := last.ArrivalTime.Sub(now)
		if rel < 0 {
			rel = 0
		}
		da.Add("inform", "arrival_time_rel", resolver.FormatDuration(rel))
	case "duration":
		d := last.ArrivalTime.Sub(first.DepartureTime)
		da.Add("inform", "duration", resolver.FormatDuration(atLeastMinute(d)))
	case "num_transfers":
		da.Add("inform", "num_transfers", strconv.Itoa(r.NumTransfers()))
	case "time_transfers":
		if len(transit) == 1 {
			da.Add("inform", "num_transfers", "0")
			break
		}
		for i := 0; i+1 < len(transit); i++ {
			wait := transit[i+1].DepartureTime.Sub(transit[i].ArrivalTime)
			da.Add("inform", "time_transfers_stop", transit[i].ArrivalStop)
			da.Add("inform", "time_transfers_limit", resolver.FormatDuration(wait))
		}
	case "distance":
		da.Add("inform", "distance", miles(r.Distance()))
		for _, s := range transit {
			da.Add("inform", "num_stops", strconv.Itoa(s.NumStops))
			da.Add("inform", "from_stop", s.DepartureStop)
			da.Add("inform", "vehicle", s.Vehicle)
			da.Add("inform", "line", s.LineName)
		}
	}
	return da
}

func atLeastMinute(d time.Duration) time.Duration {
	if d < time.Minute {
		return time.Minute
	}
	return d
}

func miles(meters int) string { return fmt.Sprintf("%0.1f", float64(meters)/metersPerMile) }

func hhmm(t time.Time) string { return t.Format("15:04") }

// confirmedInfo affirms or denies each value the user asked to confirm
// against the current belief, then clears the confirmation.
func (p *Policy) confirmedInfo(t *turn) dialogueact.DialogueAct {
	var da dialogueact.DialogueAct
	for _, slot := range t.confirmed.Names() {
		asked := t.confirmed[slot].MPV()
		sl := t.bs.Slot(slot)
		current := sl.Value.MPV()
		if asked == current {
			da.Add("affirm", "", "")
			da.Add("inform", slot, current)
		} else {
			da.Add("negate", "", "")
			da.Add("deny", slot, asked)
			if t.accepted.Has(slot) {
				da.Add("inform", slot, current)
			}
		}
		sl.Confirmed.Reset()
		sl.Change.Reset()
	}
	return da
}
