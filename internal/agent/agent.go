// Package agent implements the production chat agent that answers leads on
// behalf of a client, and the discovery scoring applied to new leads.
//
// Replies are templated from the client's persona; no model is called.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/store"
)

// DefaultBookingURL is offered when a client has no booking link.
const DefaultBookingURL = "https://calendly.com/demo"

// BusyReply is sent on activation when there is no lead message to answer.
const BusyReply = "Hola, en este momento nuestros agentes están ocupados, ¿en qué te puedo ayudar?"

// ActivationHistory is how many recent messages activation looks at.
const ActivationHistory = 5

// Reply branches.
const (
	BranchPrice     = "price"
	BranchDiscovery = "discovery"
	BranchBusy      = "busy"
)

const (
	priceReply     = "El costo depende de la escala de tu proyecto. ¿Te parece si agendamos una llamada breve para revisarlo? "
	discoveryReply = "Interesante. Noté que tienes una comunidad activa en Instagram. ¿Actualmente usas automatizaciones, o todo el alcance es manual?"
)

// ClientProfile is the persona and knowledge the agent speaks with.
type ClientProfile struct {
	ClientID       string
	BrandName      string
	PersonaName    string
	Tone           string
	Treatment      string
	SalesIntensity string
	BookingURL     string
	Documents      []string
}

// Context joins the knowledge documents with blank lines.
func (p ClientProfile) Context() string {
	return strings.Join(p.Documents, "\n\n")
}

// KnowledgeBase resolves a client's profile.
type KnowledgeBase interface {
	Profile(ctx context.Context, clientID string) (ClientProfile, error)
}

// StoreKnowledge reads profiles from the store.
type StoreKnowledge struct {
	Store store.Store
}

// Profile implements KnowledgeBase.
func (k StoreKnowledge) Profile(ctx context.Context, clientID string) (ClientProfile, error) {
	c, err := k.Store.GetClient(ctx, clientID)
	if err != nil {
		return ClientProfile{}, fmt.Errorf("load client %s: %w", clientID, err)
	}
	docs, err := k.Store.Documents(ctx, clientID)
	if err != nil {
		return ClientProfile{}, fmt.Errorf("load knowledge for %s: %w", clientID, err)
	}
	p := ClientProfile{
		ClientID:       c.ID,
		BrandName:      c.Name,
		PersonaName:    c.PersonaName,
		Tone:           c.Tone,
		Treatment:      c.Treatment,
		SalesIntensity: c.SalesIntensity,
		BookingURL:     c.BookingURL,
	}
	for _, d := range docs {
		p.Documents = append(p.Documents, d.Content)
	}
	return p, nil
}

// BuildSystemPrompt renders the persona instructions for p.
func BuildSystemPrompt(p ClientProfile) string {
	booking := p.BookingURL
	if booking == "" {
		booking = DefaultBookingURL
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Eres %s, actuando en nombre de %s.\n", p.PersonaName, p.BrandName)
	b.WriteString("Tu objetivo es calificar al usuario, responder sus dudas y si muestra interés, agendar una llamada.\n")
	fmt.Fprintf(&b, "Tono: %s. Trato: %s. Intensidad de venta: %s.\n\n", p.Tone, p.Treatment, p.SalesIntensity)
	b.WriteString("CONOCIMIENTO DE LA MARCA:\n")
	b.WriteString(p.Context())
	b.WriteString("\n\nREGLAS:\n")
	b.WriteString("- No uses emojis.\n")
	b.WriteString("- Sé humano y natural.\n")
	fmt.Fprintf(&b, "- Si detectas interés en servicio, proporciona este link para agendar: %s\n", booking)
	return b.String()
}

// Reply is an agent answer.
type Reply struct {
	Text   string
	Branch string
	// Prompt is the system prompt the reply was produced under.
	Prompt string
}

// Agent answers leads for any client known to its knowledge base.
type Agent struct {
	kb KnowledgeBase
}

// New creates an Agent.
func New(kb KnowledgeBase) *Agent {
	return &Agent{kb: kb}
}

// Reply answers one incoming lead message.
func (a *Agent) Reply(ctx context.Context, clientID, incoming string) (Reply, error) {
	p, err := a.kb.Profile(ctx, clientID)
	if err != nil {
		return Reply{}, err
	}
	r := replyFor(p, incoming)
	slog.Debug("Agent.Reply", "clientID", clientID, "branch", r.Branch)
	return r, nil
}

func replyFor(p ClientProfile, incoming string) Reply {
	r := Reply{Prompt: BuildSystemPrompt(p), Branch: BranchDiscovery, Text: discoveryReply}
	if strings.Contains(strings.ToLower(incoming), "precio") {
		r.Branch = BranchPrice
		r.Text = strings.TrimSpace(priceReply + p.BookingURL)
	}
	return r
}

// Activate answers the latest lead message among the most recent history
// (chronological). Without one it returns BusyReply.
func (a *Agent) Activate(ctx context.Context, clientID string, history []models.Message) (Reply, error) {
	p, err := a.kb.Profile(ctx, clientID)
	if err != nil {
		return Reply{}, err
	}
	if len(history) > ActivationHistory {
		history = history[len(history)-ActivationHistory:]
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].SenderType == models.SenderLead {
			r := replyFor(p, history[i].Text)
			slog.Debug("Agent.Activate", "clientID", clientID, "branch", r.Branch, "history", len(history))
			return r, nil
		}
	}
	slog.Debug("Agent.Activate: no lead message to answer", "clientID", clientID)
	return Reply{Text: BusyReply, Branch: BranchBusy, Prompt: BuildSystemPrompt(p)}, nil
}

// Transcript renders history as "Usuario:" and "Agente:" lines.
func Transcript(history []models.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		who := "Agente"
		if m.SenderType == models.SenderLead {
			who = "Usuario"
		}
		lines = append(lines, who+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}
