package dialogue

import (
	"regexp"
	"strings"
)

// RuleName identifies an override rule, or the funnel when none matched.
type RuleName string

const (
	RuleGreeting          RuleName = "greeting"
	RuleCalendarFulfil    RuleName = "calendar_fulfillment"
	RuleCalendarClose     RuleName = "calendar_closing"
	RulePrice             RuleName = "price"
	RuleSimulation        RuleName = "simulation"
	RuleTwoPathResolution RuleName = "two_path_cta"
	RuleFunnel            RuleName = "funnel"
)

// Rule is one entry of the override cascade. Respond is only called when
// Applies returned true.
type Rule struct {
	Name    RuleName
	Applies func(t Transcript, s Slots) bool
	Respond func(t Transcript, s Slots) Template
}

// Overrides returns the cascade in priority order. The first rule whose
// predicate holds wins; later rules are not evaluated.
func Overrides() []Rule {
	return []Rule{
		{Name: RuleGreeting, Applies: greetingApplies, Respond: greetingRespond},
		{Name: RuleCalendarFulfil, Applies: calendarFulfilApplies, Respond: calendarFulfilRespond},
		{Name: RuleCalendarClose, Applies: calendarCloseApplies, Respond: calendarCloseRespond},
		{Name: RulePrice, Applies: priceApplies, Respond: priceRespond},
		{Name: RuleSimulation, Applies: simulationApplies, Respond: simulationRespond},
		{Name: RuleTwoPathResolution, Applies: twoPathApplies, Respond: twoPathRespond},
	}
}

// Cascade evaluates rules top to bottom and reports the first match.
func Cascade(rules []Rule, t Transcript, s Slots) (RuleName, Template, bool) {
	for _, r := range rules {
		if r.Applies(t, s) {
			return r.Name, r.Respond(t, s), true
		}
	}
	return "", Template{}, false
}

func greetingApplies(_ Transcript, s Slots) bool {
	return s.IsGreeting && s.ExtractedName == "" && !s.NameRefused && s.StepCount <= 2
}

func greetingRespond(_ Transcript, s Slots) Template {
	if strings.Contains(strings.ToLower(s.LastAssistant), "cómo te llamas") {
		return tplGreetingRepeat
	}
	return tplGreetingAskName
}

var digit = regexp.MustCompile(`\d`)

var (
	calendarLinkWords = []string{"link", "pasa", "pásame", "calendario", "1", "opción 1"}
	calendarTimeWords = []string{"h", "pm", "am", "hora", "mañana", "tarde", "2", "opción 2"}
)

func calendarFulfilApplies(_ Transcript, s Slots) bool {
	return s.OfferedCalendarLink
}

func calendarFulfilRespond(_ Transcript, s Slots) Template {
	switch {
	case containsAny(s.LastMessage, calendarLinkWords...):
		return tplCalendarLink
	case digit.MatchString(s.LastMessage) && containsAny(s.LastMessage, calendarTimeWords...):
		return tplCalendarZone
	default:
		return tplCalendarAsk
	}
}

var bookingIntentWords = []string{"aplicar", "aplico", "vale", "quiero", "cómo seguimos", "agendamos", "reunión", "llamada", "montar", "montamos"}

func calendarCloseApplies(_ Transcript, s Slots) bool {
	if !s.DeliveredSimulation {
		return false
	}
	return strings.TrimSpace(s.LastMessage) == "a" || containsAny(s.LastMessage, bookingIntentWords...)
}

func calendarCloseRespond(Transcript, Slots) Template {
	return tplCalendarClose
}

var priceWords = []string{"precio", "cuesta", "costo", "cuánto", "valor"}

func priceApplies(_ Transcript, s Slots) bool {
	return containsAny(s.LastMessage, priceWords...)
}

func priceRespond(_ Transcript, s Slots) Template {
	if !s.HasVolumeSignal {
		return tplPriceAskVolume
	}
	return tplPricePriority
}

// strictYes must match the whole message once punctuation is removed.
var strictYes = []string{"si", "sí", "dale", "simula", "ok simula", "va", "perfecto", "sí por favor", "si porfa", "vale", "bueno", "ok", "claro", "por qué no"}

func simulationApplies(_ Transcript, s Slots) bool {
	return s.OfferedSimulation && !s.DeliveredSimulation
}

func simulationRespond(_ Transcript, s Slots) Template {
	if !acceptsSimulation(s.LastMessage) {
		return tplSimulationReask
	}
	if s.HasAgency && s.HasVolumeSignal {
		return simulationTemplate(simulationAgency)
	}
	return simulationTemplate(simulationDefault)
}

func acceptsSimulation(last string) bool {
	normalised := stripPunctuation(strings.TrimSpace(last))
	for _, w := range strictYes {
		if normalised == w {
			return true
		}
	}
	return containsAny(last, "simula", "ejemplo")
}

func twoPathApplies(_ Transcript, s Slots) bool {
	if !s.DeliveredSimulation {
		return false
	}
	msg := strings.TrimSpace(s.LastMessage)
	return strings.HasPrefix(msg, "b:") || strings.HasPrefix(msg, "b ") || msg == "b" || s.IsPitchLike
}

func twoPathRespond(Transcript, Slots) Template {
	return tplTwoPathScript
}
