package policy

import (
	"strconv"

	"go.uber.org/zap"

	"pti/dm/internal/dialogueact"
	"pti/dm/internal/ontology"
	"pti/dm/internal/resolver"
	"pti/dm/internal/weather"
)

func (p *Policy) weatherTopic(t *turn) dialogueact.DialogueAct {
	req, city, state := p.gatherPlace(t, true)
	if len(req) > 0 {
		return req
	}
	if da := p.cityStateConflict(city, state); da != nil {
		return da
	}
	if !t.stateChanged {
		return p.backoff(t.bs)
	}
	return p.findWeather(t, city, state)
}

// gatherPlace resolves the city and state a weather or time question is
// about. A city with a single state implies it; with neither given, the
// defaults apply.
func (p *Policy) gatherPlace(t *turn, forWeather bool) (req dialogueact.DialogueAct, city, state string) {
	city, state = t.acceptedMPV("in_city"), t.acceptedMPV("in_state")
	if set(city) && !set(state) {
		state = resolver.StateForCity(p.ont, city)
	}
	if !set(city) && !set(state) {
		city = p.ont.DefaultValue("in_city")
		state = p.ont.DefaultValue("in_state")
	}
	switch {
	case !set(state):
		req.Add("request", "in_state", "")
	case forWeather && !set(city):
		req.Add("request", "in_city", "")
	}
	return req, city, state
}

func (p *Policy) cityStateConflict(city, state string) dialogueact.DialogueAct {
	if p.ont.IsCompatible("city_state", city, state) {
		return nil
	}
	da := dialogueact.MustParse(`apology()&inform(cities_conflict="incompatible")`)
	da.Add("inform", "in_city", city)
	da.Add("inform", "in_state", state)
	return da
}

func (p *Policy) findWeather(t *turn, city, state string) dialogueact.DialogueAct {
	bs := t.bs
	abs, rel, date, ampm := bs.MPV("time"), bs.MPV("time_rel"), bs.MPV("date_rel"), bs.MPV("ampm")
	lta := bs.MPV("lta_time")

	q := weather.Query{
		City:  city,
		State: state,
		// only a date was given
		Daily: !set(abs) && !set(ampm) && set(date) && lta != "time_rel",
	}
	kind := resolver.Kind("")
	if set(abs) || set(rel) || set(ampm) || set(date) {
		q.Time, kind = resolver.Interpret(p.clock(), resolver.TimeSlots{
			Abs: abs, AMPM: ampm, Rel: rel, DateRel: date, LTA: lta,
		})
	}
	if len(p.ont.CompatibleValues("city_state", city)) == 1 {
		if g, ok := p.ont.Geo("city", city); ok {
			lon, lat := g.Lon, g.Lat
			q.Lon, q.Lat = &lon, &lat
		}
	}

	w, err := p.weather.Weather(t.ctx, q)
	if err != nil || w == nil {
		p.log.Warn("weather lookup failed", zap.Error(err),
			zap.String("city", city), zap.String("state", state))
		da := dialogueact.MustParse("apology()")
		da.Add("inform", "in_city", city)
		da.Add("inform", "in_state", state)
		return da
	}

	var da dialogueact.DialogueAct
	switch {
	case q.Time.IsZero(), kind == resolver.Relative && !set(rel):
		da.Add("inform", "time_rel", "now")
	case kind == resolver.Relative:
		da.Add("inform", "time_rel", rel)
	default:
		if set(abs) || set(ampm) {
			da.Add("inform", "time", hhmm(q.Time))
		}
		if set(date) {
			da.Add("inform", "date_rel", date)
		}
	}
	if q.Daily {
		da.Add("inform", "min_temperature", strconv.Itoa(w.MinTemp))
		da.Add("inform", "max_temperature", strconv.Itoa(w.MaxTemp))
	} else {
		da.Add("inform", "temperature", strconv.Itoa(w.Temp))
	}
	da.Add("inform", "weather_condition", w.Condition)
	return da
}

// currentTime answers with the clock of the ontology's time zone. Only the
// default state is known to share it; any other state gets an apology and
// the default state's time.
func (p *Policy) currentTime(t *turn) dialogueact.DialogueAct {
	req, city, state := p.gatherPlace(t, false)
	if len(req) > 0 {
		return req
	}
	t.bs.Slot("current_time").Requested.Reset()
	if set(city) {
		if da := p.cityStateConflict(city, state); da != nil {
			return da
		}
	}

	now := hhmm(p.clock())
	def := p.ont.DefaultValue("in_state")
	var da dialogueact.DialogueAct
	if state != def && def != ontology.None {
		da.Add("apology", "", "")
		da.Add("inform", "in_state", state)
	}
	da.Add("inform", "current_time", now)
	da.Add("iconfirm", "in_state", def)
	return da
}
