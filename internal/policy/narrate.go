package policy

import (
	"strconv"

	"pti/dm/internal/belief"
	"pti/dm/internal/dialogueact"
	"pti/dm/internal/directions"
)

// Pseudo stops bounding a route description.
const (
	origin      = "ORIGIN"
	destination = "FINAL_DEST"
)

// narrate describes the selected route in the order of its steps. routeType
// labels the alternative ("true", "next", "prev", "last"). Without a route
// it apologizes and echoes the query.
func (p *Policy) narrate(bs *belief.State, routeType string) dialogueact.DialogueAct {
	d := bs.Directions
	var steps []directions.Step
	if i, ok := bs.RouteAlternative(); ok && i < d.Len() {
		for _, l := range d.Routes[i].Legs {
			steps = append(steps, l.Steps...)
		}
	} else {
		bs.ClearRouteAlternative()
	}

	var da dialogueact.DialogueAct
	if d.Len() > 1 && len(steps) > 0 {
		da.Add("inform", "found_directions", routeType)
		if routeType != "last" {
			i, _ := bs.RouteAlternative()
			da.Add("inform", "alternative", ordinal(i+1))
		}
	}

	var conn directions.ConnInfo
	if bs.ConnInfo != nil {
		conn = *bs.ConnInfo
	}

	prev := origin
	for k, st := range steps {
		next := destination
		if k < len(steps)-2 && steps[k+1].Mode == directions.ModeWalking {
			next = steps[k+2].DepartureStop
		} else if k < len(steps)-1 && steps[k+1].Mode == directions.ModeTransit {
			next = steps[k+1].DepartureStop
		}

		switch st.Mode {
		case directions.ModeWalking:
			if (next == destination && prev != origin && prev != conn.ToStop) ||
				(prev == origin && next != destination && next != conn.FromStop) ||
				(next != destination && prev != origin && next != prev) {
				da.Add("inform", "walk_to", next)
			}
		case directions.ModeTransit:
			da.Add("inform", "vehicle", st.Vehicle)
			da.Add("inform", "line", st.LineName)
			da.Add("inform", "departure_time", hhmm(st.DepartureTime))
			if st.DepartureStop != prev {
				da.Add("inform", "enter_at", st.DepartureStop)
			}
			da.Add("inform", "headsign", st.Headsign)
			da.Add("inform", "exit_at", st.ArrivalStop)
			if next != destination {
				da.Add("inform", "transfer", "true")
			}
			prev = st.ArrivalStop
		}
	}

	if len(da) == 0 {
		da.Add("apology", "", "")
		da.Extend(minimalInfo(conn))
	}
	return da
}

// minimalInfo echoes the endpoints and constraints of a query.
func minimalInfo(c directions.ConnInfo) dialogueact.DialogueAct {
	var da dialogueact.DialogueAct
	cities := c.FromCity != c.ToCity || directions.Set(c.FromStop) != directions.Set(c.ToStop)
	if cities && set(c.FromCity) {
		da.Add("inform", "from_city", c.FromCity)
	}
	if directions.Set(c.FromStop) {
		da.Add("inform", "from_stop", c.FromStop)
	}
	if cities && set(c.ToCity) {
		da.Add("inform", "to_city", c.ToCity)
	}
	if directions.Set(c.ToStop) {
		da.Add("inform", "to_stop", c.ToStop)
	}
	if directions.Set(c.Vehicle) {
		da.Add("inform", "vehicle", c.Vehicle)
	}
	if directions.Set(c.MaxTransfers) {
		da.Add("inform", "num_transfers", c.MaxTransfers)
	}
	return da
}

var ordinals = []string{
	"zeroth", "first", "second", "third", "fourth", "fifth",
	"sixth", "seventh", "eighth", "ninth", "tenth",
}

func ordinal(n int) string {
	if n >= 0 && n < len(ordinals) {
		return ordinals[n]
	}
	return strconv.Itoa(n) + "th"
}
