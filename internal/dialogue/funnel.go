package dialogue

// State is a step of the sequential qualification funnel.
type State string

const (
	StateNone            State = ""
	StateAskName         State = "ASK_NAME"
	StateAskVertical     State = "ASK_VERTICAL"
	StateAskVolume       State = "ASK_VOLUME"
	StateAskClosingStyle State = "ASK_CLOSING_STYLE"
	StateAskPainPoint    State = "ASK_PAIN_POINT"
	StateOfferSimulation State = "OFFER_SIMULATION"
	StateAskChannel      State = "ASK_CHANNEL"
	StateCalendarHandoff State = "CALENDAR_HANDOFF"
)

// Question is one qualifying question of the funnel. Markers are substrings
// that identify the question inside an assistant turn; Pending reports
// whether the question still needs an answer.
type Question struct {
	State   State
	Markers []string
	Pending func(t Transcript, s Slots) bool
}

// AskedIn reports whether content carries one of the question's markers.
func (q Question) AskedIn(content string) bool {
	return containsAny(content, q.Markers...)
}

// Asked reports whether any assistant turn already asked the question.
func (q Question) Asked(t Transcript) bool {
	return t.AssistantSaid(q.AskedIn)
}

var (
	questionName = Question{
		State:   StateAskName,
		Markers: []string{"Cómo te llamas", "cómo te llamas", "con quién hablo"},
	}
	questionVertical = Question{
		State:   StateAskVertical,
		Markers: []string{"creator/infoproductor o agencia", "agencia o eres creator/infoproductor"},
		Pending: func(_ Transcript, s Slots) bool { return !s.HasAgency && !s.HasCreator },
	}
	questionVolume = Question{
		State:   StateAskVolume,
		Markers: []string{"ticket medio"},
		Pending: func(_ Transcript, s Slots) bool { return !s.HasVolumeSignal },
	}
	questionClosingStyle = Question{
		State:   StateAskClosingStyle,
		Markers: []string{"llamada o por checkout"},
	}
	questionPainPoint = Question{
		State:   StateAskPainPoint,
		Markers: []string{"frenando más"},
	}
	questionOfferSimulation = Question{
		State:   StateOfferSimulation,
		Markers: simulationOfferMarkers,
		Pending: func(_ Transcript, s Slots) bool { return !s.OfferedSimulation },
	}
	questionChannel = Question{
		State:   StateAskChannel,
		Markers: []string{"fuerte es Instagram o WhatsApp"},
	}
)

func init() {
	questionName.Pending = func(t Transcript, s Slots) bool {
		return s.ExtractedName == "" && !s.NameRefused && !t.AssistantSaid(askedForName)
	}
	questionClosingStyle.Pending = func(t Transcript, _ Slots) bool { return !questionClosingStyle.Asked(t) }
	questionPainPoint.Pending = func(t Transcript, _ Slots) bool { return !questionPainPoint.Asked(t) }
}

// Funnel lists the qualifying questions in the order they are asked. The
// channel question is the failsafe and is handled by Progress.
func Funnel() []Question {
	return []Question{
		questionName,
		questionVertical,
		questionVolume,
		questionClosingStyle,
		questionPainPoint,
		questionOfferSimulation,
	}
}

// Progress picks the funnel step for a transcript no override claimed.
func Progress(t Transcript, s Slots) (State, Template) {
	active := StateAskChannel
	for _, q := range Funnel() {
		if q.Pending(t, s) {
			active = q.State
			break
		}
	}

	switch active {
	case StateAskName:
		return StateAskName, tplAskName
	case StateAskVertical:
		// An ambiguous answer to the vertical question moves on to volume
		// instead of asking vertical again.
		if questionVertical.AskedIn(s.LastAssistant) && !s.IsGreeting {
			return StateAskVolume, tplVolumeAfterVertical
		}
		return StateAskVertical, verticalTemplate(t, s)
	case StateAskVolume:
		return StateAskVolume, tplVolume
	case StateAskClosingStyle:
		return StateAskClosingStyle, tplClosingStyle
	case StateAskPainPoint:
		return StateAskPainPoint, tplPainPoint
	case StateOfferSimulation:
		return StateOfferSimulation, tplOfferSim
	}

	if questionChannel.AskedIn(s.LastAssistant) {
		return StateCalendarHandoff, tplCalendarClose
	}
	return StateAskChannel, tplChannel
}

func verticalTemplate(t Transcript, s Slots) Template {
	if !t.AssistantSaid(askedForName) || s.StepCount > 3 {
		return tplVertical
	}
	if s.ExtractedName != "" && !s.NameRefused {
		return tplVerticalAfterName
	}
	return tplVerticalNameDeclined
}
