package policy

import (
	"pti/dm/internal/belief"
	"pti/dm/internal/dialogueact"
)

type helpTopic struct{ name, value string }

var (
	helpAlternatives = []helpTopic{
		{"inform", "alternative_abs"}, {"inform", "alternative_prev"},
		{"inform", "alternative_next"}, {"inform", "alternative_last"},
	}
	helpStops = []helpTopic{
		{"inform", "from_stop"}, {"inform", "to_stop"},
		{"request", "from_stop"}, {"request", "to_stop"},
		{"request", "num_transfers"}, {"inform", "num_transfers"},
	}
	helpTime    = []helpTopic{{"inform", "departure_time"}, {"request", "current_time"}}
	helpGeneral = []helpTopic{{"", ""}, {"repeat", ""}, {"inform", "hangup"}}
	helpWeather = []helpTopic{{"task", "weather"}}

	helpConnection = concat(helpAlternatives, helpStops, helpTime)
)

func concat(lists ...[]helpTopic) []helpTopic {
	var out []helpTopic
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// helpMenu answers an explicit request for help with a random topic of the
// task the user is on.
func (p *Policy) helpMenu(t *turn) dialogueact.DialogueAct {
	var topics []helpTopic
	switch t.acceptedMPV("task") {
	case "weather":
		topics = helpWeather
	case "find_connection":
		topics = helpConnection
	default:
		topics = helpGeneral
	}
	h := topics[p.rng.Intn(len(topics))]
	return dialogueact.Of(dialogueact.NewItem("help", h.name, h.value))
}

// contextHelp suggests something the user could say next. Before a route
// has been offered it points at the tasks and the missing endpoints; after,
// at navigating the alternatives.
func (p *Policy) contextHelp(bs *belief.State) dialogueact.DialogueAct {
	help := func(name, value string) dialogueact.DialogueAct {
		return dialogueact.Of(dialogueact.NewItem("help", name, value))
	}
	th := p.cfg.AcceptProb

	if _, offered := bs.RouteAlternative(); !offered {
		switch {
		case p.randbool(10):
			return help("task", "weather")
		case p.randbool(10):
			return help("request", "current_time")
		case p.randbool(10):
			return help("inform", "hangup")
		case p.randbool(9):
			return help("request", "help")
		case p.randbool(8):
			return help("inform", "departure_time")
		case p.randbool(7):
			return help("repeat", "")
		case !bs.Slot("from_stop").Value.Test("none", th, true):
			return help("inform", "from_stop")
		case !bs.Slot("to_stop").Value.Test("none", th, true):
			return help("inform", "to_stop")
		}
		return dialogueact.MustParse("silence()")
	}

	switch {
	case p.randbool(4):
		return help("inform", "alternative_last")
	case p.randbool(7):
		return help("inform", "alternative_next")
	case p.randbool(6):
		return help("inform", "alternative_prev")
	case p.randbool(5):
		return help("inform", "alternative_abs")
	case p.randbool(4):
		return help("request", "from_stop")
	case p.randbool(3):
		return help("request", "to_stop")
	case p.randbool(2):
		return help("request", "num_transfers")
	}
	return dialogueact.MustParse("silence()")
}

// backoff is the answer when there is nothing new to say.
func (p *Policy) backoff(bs *belief.State) dialogueact.DialogueAct {
	switch {
	case p.randbool(10):
		return p.contextHelp(bs)
	case p.randbool(9):
		return dialogueact.MustParse("reqmore()")
	case p.randbool(8):
		return dialogueact.MustParse("notunderstood()")
	case p.randbool(3):
		return dialogueact.MustParse("irepeat()")
	}
	return dialogueact.MustParse("silence()")
}
