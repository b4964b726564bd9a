package dialogue

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// EmpathyCategory is the sympathetic lead-in family detected in the last
// user message.
type EmpathyCategory string

const (
	EmpathyNone           EmpathyCategory = ""
	EmpathyBotDoubt       EmpathyCategory = "bot-doubt"
	EmpathyLeadsEscaping  EmpathyCategory = "leads-escaping"
	EmpathyFearOfAnnoying EmpathyCategory = "fear-of-annoying"
	EmpathyGeneric        EmpathyCategory = "generic"
)

// Slots is the set of facts derived from one transcript. It lives for a single
// request and is never persisted.
type Slots struct {
	ExtractedName string
	NameRefused   bool

	// HasAgency and HasCreator are independent; both may be true.
	HasAgency  bool
	HasCreator bool

	HasVolumeSignal    bool
	HasCallCountSignal bool

	IsGreeting  bool
	IsPitchLike bool

	Empathy EmpathyCategory

	OfferedSimulation   bool
	DeliveredSimulation bool
	OfferedCalendarLink bool

	StepCount int

	// LastMessage is the lowercased content of the turn being answered.
	LastMessage string
	// LastAssistant is the verbatim content of the latest assistant turn.
	LastAssistant string
}

// NameCallout is the ", Name" personalisation suffix, or "".
func (s Slots) NameCallout() string {
	if s.ExtractedName == "" || s.NameRefused {
		return ""
	}
	return ", " + s.ExtractedName
}

var (
	agencyKeywords  = []string{"agencia", "servicios", "b2b"}
	creatorKeywords = []string{"creator", "infoprodu", "marca"}
	volumeKeywords  = []string{"$", "€", "ticket", "dms", "dm", "mensajes", "al día", "por día", "diario"}
	callKeywords    = []string{"dos", "tres", "cuatro", "cinco"}
	refusalKeywords = []string{"prefiero no", "no te lo digo", "no quiero", "anónimo", "anonimo"}
	pitchKeywords   = []string{"oferta", "ayudo a", "ofrezco", "vendo", "prometo", "lanzamiento", "programa", "mentoría"}

	empathyTriggers = []string{"caos", "abasto", "escapan", "quema", "bots", "escalar", "miedo", "duda", "difícil"}

	greetings = []string{"hola", "hey", "holaa", "buenas", "hello", "que tal", "qué tal", "saludos"}

	nameStopWords = []string{"no", "soy", "me", "llamo", "hola", "hey", "holaa", "buenas", "hello", "que"}
	namePrompts   = []string{"cómo te llamas", "con quién hablo"}

	simulationOfferMarkers = []string{"simule", "simulo", "simular", "simulación"}
)

const (
	simulationDeliveredMarker = "(Ani)"
	calendarOfferMarker       = "dos opciones"
)

var (
	punctuation    = regexp.MustCompile(`[.,!¡¿?]`)
	volumeNumber   = regexp.MustCompile(`^\d{2,}\s*[€$]?`)
	callCountOnly  = regexp.MustCompile(`^\s*(\d+)\s*(llamadas?)?\s*$`)
	nameCharacters = regexp.MustCompile(`^[a-zA-ZáéíóúÁÉÍÓÚñÑ]+$`)
)

// ExtractSlots derives the slot set from a validated transcript. It is pure
// and total over any transcript that passed Validate.
func ExtractSlots(t Transcript) Slots {
	last := strings.ToLower(t.Last().Content)
	userText := t.userText()

	s := Slots{
		LastMessage:   last,
		LastAssistant: t.LastAssistant(),
		StepCount:     len(t.ByRole(RoleUser)),
	}

	s.HasAgency = containsAny(userText, agencyKeywords...)
	s.HasCreator = containsAny(userText, creatorKeywords...)
	s.HasVolumeSignal = hasVolumeSignal(t, userText)
	s.HasCallCountSignal = containsAny(userText, callKeywords...) || callCountOnly.MatchString(last)

	s.NameRefused = containsAny(userText, refusalKeywords...)
	if !s.NameRefused {
		s.ExtractedName = extractName(t)
	}

	s.IsGreeting = isGreeting(last)
	s.IsPitchLike = isPitchLike(last)
	s.Empathy = detectEmpathy(last)

	s.OfferedSimulation = t.AssistantSaid(func(c string) bool {
		return containsAny(strings.ToLower(c), simulationOfferMarkers...)
	})
	s.DeliveredSimulation = t.AssistantSaid(func(c string) bool {
		return strings.Contains(c, simulationDeliveredMarker)
	})
	s.OfferedCalendarLink = t.AssistantSaid(func(c string) bool {
		return strings.Contains(c, calendarOfferMarker)
	})
	return s
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func stripPunctuation(s string) string {
	return punctuation.ReplaceAllString(s, "")
}

// hasVolumeSignal accepts currency symbols and volume words anywhere in the
// user text, or any user turn that leads with a two-or-more digit number.
func hasVolumeSignal(t Transcript, userText string) bool {
	if containsAny(userText, volumeKeywords...) {
		return true
	}
	for _, turn := range t.ByRole(RoleUser) {
		if volumeNumber.MatchString(strings.TrimSpace(turn.Content)) {
			return true
		}
	}
	return false
}

func askedForName(content string) bool {
	return containsAny(strings.ToLower(content), namePrompts...)
}

// extractName reads the user turn that directly follows the first
// name-eliciting assistant turn.
func extractName(t Transcript) string {
	for i, turn := range t {
		if turn.Role != RoleAssistant || !askedForName(turn.Content) {
			continue
		}
		if i+1 >= len(t) || t[i+1].Role != RoleUser {
			return ""
		}
		return parseName(t[i+1].Content)
	}
	return ""
}

func parseName(reply string) string {
	words := strings.Fields(stripPunctuation(reply))
	if len(words) != 1 {
		return ""
	}
	word := words[0]
	if n := utf8.RuneCountInString(word); n < 2 || n > 15 {
		return ""
	}
	if !nameCharacters.MatchString(word) {
		return ""
	}
	lower := strings.ToLower(word)
	for _, stop := range nameStopWords {
		if lower == stop {
			return ""
		}
	}
	first, size := utf8.DecodeRuneInString(lower)
	return string(unicode.ToUpper(first)) + lower[size:]
}

// isGreeting requires the whole normalised message to be a greeting;
// containment is not enough.
func isGreeting(last string) bool {
	normalised := stripPunctuation(strings.TrimSpace(last))
	for _, g := range greetings {
		if normalised == g {
			return true
		}
	}
	return false
}

func isPitchLike(last string) bool {
	if containsAny(last, pitchKeywords...) {
		return true
	}
	return strings.Contains(last, "en ") && strings.Contains(last, "días")
}

func detectEmpathy(last string) EmpathyCategory {
	if !containsAny(last, empathyTriggers...) {
		return EmpathyNone
	}
	switch {
	case containsAny(last, "bot", "duda"):
		return EmpathyBotDoubt
	case containsAny(last, "escapan", "tardar"):
		return EmpathyLeadsEscaping
	case containsAny(last, "miedo", "quema"):
		return EmpathyFearOfAnnoying
	default:
		return EmpathyGeneric
	}
}
