package resolver

import "pti/dm/internal/ontology"

// Endpoint is one end of a connection as far as the belief knows it.
type Endpoint struct {
	Stop string
	City string
	// Inferred is set when City was deduced from Stop or the other endpoint.
	Inferred bool
	// Candidates are the cities compatible with Stop while City is unknown.
	Candidates []string
}

// Known reports whether v is a concrete value.
func Known(v string) bool { return !unset(v) && v != ontology.Any }

// ResolveCities fills in the cities of both endpoints from stop/city
// compatibility: a stop compatible with exactly one city fixes it, an
// unresolved endpoint follows the other one when that city is among its
// candidates, and two unresolved endpoints use the intersection of their
// candidates when it is a single city.
func ResolveCities(ont *ontology.Ontology, from, to Endpoint) (Endpoint, Endpoint) {
	from = candidates(ont, from)
	to = candidates(ont, to)

	follow := func(e, other Endpoint) Endpoint {
		if Known(e.City) || !Known(other.City) {
			return e
		}
		for _, c := range e.Candidates {
			if c == other.City {
				e.City, e.Inferred, e.Candidates = c, true, nil
				break
			}
		}
		return e
	}
	to = follow(to, from)
	from = follow(from, to)

	if !Known(from.City) && !Known(to.City) && len(from.Candidates) > 1 && len(to.Candidates) > 1 {
		common := intersect(from.Candidates, to.Candidates)
		if len(common) == 1 {
			from.City, from.Inferred, from.Candidates = common[0], true, nil
			to.City, to.Inferred, to.Candidates = common[0], true, nil
		}
	}
	return from, to
}

func candidates(ont *ontology.Ontology, e Endpoint) Endpoint {
	if Known(e.City) || !Known(e.Stop) {
		return e
	}
	e.Candidates = ont.CompatibleValues("stop_city", e.Stop)
	if len(e.Candidates) == 1 {
		e.City, e.Inferred, e.Candidates = e.Candidates[0], true, nil
	}
	return e
}

func intersect(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, v := range b {
		in[v] = true
	}
	var out []string
	for _, v := range a {
		if in[v] {
			out = append(out, v)
		}
	}
	return out
}

// DefaultStopCandidates are tried in order when a city is given without a stop.
var DefaultStopCandidates = []func(city string) string{
	func(city string) string { return city },
	func(city string) string { return city + " Hlavní nádraží" },
	func(city string) string { return city + ", náměstí" },
	func(city string) string { return city + ", autobusové nádraží" },
	func(city string) string { return city + " main station" },
	func(city string) string { return city + " city" },
}

// DefaultStop returns the first candidate stop known to belong to city, or
// none.
func DefaultStop(ont *ontology.Ontology, city string) string {
	for _, f := range DefaultStopCandidates {
		stop := f(city)
		for _, s := range ont.CompatibleValues("city_stop", city) {
			if s == stop {
				return stop
			}
		}
	}
	return ontology.None
}

// StateForCity returns the single state compatible with city, or none when
// there are zero or several.
func StateForCity(ont *ontology.Ontology, city string) string {
	states := ont.CompatibleValues("city_state", city)
	if len(states) == 1 {
		return states[0]
	}
	return ontology.None
}
