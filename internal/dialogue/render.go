package dialogue

import "strings"

// Template is a reply shape before personalisation.
//
// When Empathic is set the template has an insertion point at its start: the
// empathy prefix replaces Lead if one was detected, otherwise Lead is used.
// Body may reference {name}, {callout} and {booking}.
type Template struct {
	Lead     string
	Body     string
	Empathic bool
}

// Vars carries the values substituted into a template.
type Vars struct {
	EmpathyPrefix string
	Name          string
	NameCallout   string
	BookingURL    string
}

var empathyPrefixes = map[EmpathyCategory]string{
	EmpathyBotDoubt:       "Normal que dudes: si suena a bot, la gente se enfría. ",
	EmpathyLeadsEscaping:  "Uf, sí… perder leads por tardar en responder frustra. ",
	EmpathyFearOfAnnoying: "Tiene sentido; quemar audiencia por insistir mal da miedo. ",
	EmpathyGeneric:        "Te entiendo… cuando el volumen sube, se desordena todo rápido. ",
}

// EmpathyPrefix returns the lead-in sentence for a category, or "".
func EmpathyPrefix(c EmpathyCategory) string {
	return empathyPrefixes[c]
}

// VarsFor builds render variables from a slot set.
func VarsFor(s Slots, bookingURL string) Vars {
	return Vars{
		EmpathyPrefix: EmpathyPrefix(s.Empathy),
		Name:          s.ExtractedName,
		NameCallout:   s.NameCallout(),
		BookingURL:    bookingURL,
	}
}

// Render formats a template. It has no side effects.
func Render(t Template, v Vars) string {
	lead := t.Lead
	if t.Empathic && v.EmpathyPrefix != "" {
		lead = v.EmpathyPrefix
	}
	r := strings.NewReplacer("{name}", v.Name, "{callout}", v.NameCallout, "{booking}", v.BookingURL)
	return lead + r.Replace(t.Body)
}
