package dialogue

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nameAsk = "Hey, soy Ani. Un gusto. ¿Cómo te llamas?"

func user(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func assistant(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

func reply(t *testing.T, turns ...Turn) Reply {
	t.Helper()
	r, err := NewEngine().Reply(Transcript(turns))
	require.NoError(t, err)
	return r
}

func TestEngine_GreetingPrecedence(t *testing.T) {
	r := reply(t, user("hola"))
	assert.Equal(t, RuleGreeting, r.Rule)
	assert.Equal(t, nameAsk, r.Content)

	r = reply(t, user("¡Hola!"))
	assert.Equal(t, nameAsk, r.Content)
}

func TestEngine_GreetingRepeatAfterNameQuestion(t *testing.T) {
	r := reply(t, assistant("¿Cómo te llamas?"), user("hola"))
	assert.Equal(t, RuleGreeting, r.Rule)
	assert.Equal(t, "Jeje hola de nuevo. Pero en serio, ¿con quién hablo?", r.Content)
}

func TestEngine_GreetingNeedsWholeMessage(t *testing.T) {
	r := reply(t, user("hola, ¿cuánto cuesta?"))
	assert.Equal(t, RulePrice, r.Rule)
}

func TestEngine_NameAcknowledged(t *testing.T) {
	r := reply(t, assistant("¿Cómo te llamas?"), user("Carlos"))
	assert.Equal(t, RuleFunnel, r.Rule)
	assert.Equal(t, StateAskVertical, r.State)
	assert.Equal(t, "Genial, Carlos. ¿Eres creator/infoproductor o agencia?", r.Content)
}

func TestEngine_NameCalloutInBookingLink(t *testing.T) {
	r := reply(t,
		assistant("¿Cómo te llamas?"), user("carlos"),
		assistant(tplCalendarClose.Body), user("pásame el link"),
	)
	assert.Equal(t, RuleCalendarFulfil, r.Rule)
	assert.True(t, strings.HasPrefix(r.Content, "Aquí lo tienes, Carlos: "+DefaultBookingURL))
}

func TestEngine_PriceBranching(t *testing.T) {
	r := reply(t, user("¿cuánto cuesta?"))
	assert.Equal(t, RulePrice, r.Rule)
	assert.Equal(t, tplPriceAskVolume.Body, r.Content)

	r = reply(t, user("cobro $500"), assistant("Vale, te pillo."), user("¿cuánto cuesta?"))
	assert.Equal(t, RulePrice, r.Rule)
	assert.Equal(t, tplPricePriority.Body, r.Content)
}

func qualifiedTranscript(last string) []Turn {
	return []Turn{
		assistant(nameAsk), user("Carlos"),
		assistant("Genial, Carlos. ¿Eres creator/infoproductor o agencia?"), user("tengo una agencia"),
		assistant(Render(tplVolume, Vars{})), user("cobro 500$ por cliente"),
		assistant(Render(tplClosingStyle, Vars{})), user("por llamada"),
		assistant(Render(tplPainPoint, Vars{})), user("responder tarde"),
		assistant(Render(tplOfferSim, Vars{})), user(last),
	}
}

func TestEngine_SimulationStrictYesGate(t *testing.T) {
	r := reply(t, qualifiedTranscript("tal vez")...)
	assert.Equal(t, RuleSimulation, r.Rule)
	assert.Equal(t, tplSimulationReask.Body, r.Content)

	r = reply(t, qualifiedTranscript("dale")...)
	assert.Equal(t, RuleSimulation, r.Rule)
	assert.True(t, strings.HasPrefix(r.Content, "(Ani): 'Hola, para saber si te podemos ayudar"))
	assert.Contains(t, r.Content, "busco info del servicio de ads")

	r = reply(t, qualifiedTranscript("muéstrame un ejemplo")...)
	assert.Contains(t, r.Content, "(Lead): ")
}

func TestEngine_SimulationDefaultExcerptWithoutAgency(t *testing.T) {
	r := reply(t,
		assistant(nameAsk), user("Ana"),
		assistant(Render(tplOfferSim, Vars{})), user("sí"),
	)
	assert.Equal(t, RuleSimulation, r.Rule)
	assert.Contains(t, r.Content, "(Lead): 'precio?'")
}

func TestEngine_FunnelWalkthrough(t *testing.T) {
	turns := []Turn{assistant(nameAsk)}
	steps := []struct {
		say   string
		rule  RuleName
		state State
	}{
		{"Carlos", RuleFunnel, StateAskVertical},
		{"tengo una agencia", RuleFunnel, StateAskVolume},
		{"cobro 500$ por cliente", RuleFunnel, StateAskClosingStyle},
		{"por llamada", RuleFunnel, StateAskPainPoint},
		{"responder tarde", RuleFunnel, StateOfferSimulation},
		{"dale", RuleSimulation, StateNone},
		{"b: ayudo a coaches a vender en 30 días", RuleTwoPathResolution, StateNone},
		{"por checkout", RuleFunnel, StateAskChannel},
		{"instagram", RuleFunnel, StateCalendarHandoff},
		{"el jueves a las 5pm", RuleCalendarFulfil, StateNone},
	}
	for _, step := range steps {
		turns = append(turns, user(step.say))
		r := reply(t, turns...)
		require.Equal(t, step.rule, r.Rule, "after %q", step.say)
		require.Equal(t, step.state, r.State, "after %q", step.say)
		turns = append(turns, assistant(r.Content))
	}
	assert.Equal(t, tplCalendarZone.Body, turns[len(turns)-1].Content)
}

func TestEngine_VerticalLoopAvoidance(t *testing.T) {
	vertical := "Genial, Carlos. ¿Eres creator/infoproductor o agencia?"

	r := reply(t, assistant(nameAsk), user("Carlos"), assistant(vertical), user("no sé, un poco de todo"))
	assert.Equal(t, StateAskVolume, r.State)
	assert.Equal(t, "Sin problema. Para afinarlo un poco: ¿tu ticket medio es de cuánto o cuántos DMs te entran al día, a ojo?", r.Content)

	generic := Render(tplVertical, Vars{})
	r = reply(t, assistant(nameAsk), user("prefiero no decirlo"), assistant(generic), user("depende"))
	assert.Equal(t, StateAskVolume, r.State)

	r = reply(t, assistant(nameAsk), user("Carlos"), assistant(vertical), user("hola"))
	assert.Equal(t, StateAskVertical, r.State)
}

func TestEngine_EmpathyPrefixReplacesLead(t *testing.T) {
	vertical := "Genial, Ana. ¿Eres creator/infoproductor o agencia?"
	r := reply(t, assistant(nameAsk), user("Ana"), assistant(vertical), user("me da miedo sonar a bots"))
	assert.Equal(t, "Normal que dudes: si suena a bot, la gente se enfría. ¿tu ticket medio es de cuánto o cuántos DMs te entran al día, a ojo?", r.Content)
}

func TestEngine_CalendarFulfilment(t *testing.T) {
	tests := []struct {
		say  string
		want string
	}{
		{"pásame el link", "Aquí lo tienes: " + DefaultBookingURL + "\nCuando reserves, te llega invitación por Google Calendar.\n\n— Ani"},
		{"a las 5pm", tplCalendarZone.Body},
		{"no sé", tplCalendarAsk.Body},
	}
	for _, tt := range tests {
		t.Run(tt.say, func(t *testing.T) {
			r := reply(t, assistant(tplCalendarClose.Body), user(tt.say))
			assert.Equal(t, RuleCalendarFulfil, r.Rule)
			assert.Equal(t, tt.want, r.Content)
		})
	}
}

func TestEngine_CustomBookingURL(t *testing.T) {
	e := NewEngine(WithBookingURL("https://example.com/book"))
	r, err := e.Reply(Transcript{assistant(tplCalendarClose.Body), user("opción 1")})
	require.NoError(t, err)
	assert.Contains(t, r.Content, "https://example.com/book")
}

func TestEngine_ClosingTriggerAfterSimulation(t *testing.T) {
	sim := Render(simulationTemplate(simulationDefault), Vars{})
	for _, say := range []string{"a", "quiero aplicar", "¿cómo seguimos?"} {
		r := reply(t, assistant(sim), user(say))
		assert.Equal(t, RuleCalendarClose, r.Rule, say)
		assert.Equal(t, tplCalendarClose.Body, r.Content)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	turns := qualifiedTranscript("dale")
	e := NewEngine()
	first, err := e.Reply(turns)
	require.NoError(t, err)
	second, err := e.Reply(turns)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEngine_ValidationError(t *testing.T) {
	e := NewEngine()
	for name, tr := range map[string]Transcript{
		"empty":          {},
		"assistant last": {user("hola"), assistant("hey")},
		"unknown role":   {{Role: "system", Content: "x"}, user("hola")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.Reply(tr)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestEngine_PanicBecomesInternalError(t *testing.T) {
	boom := Rule{
		Name:    "boom",
		Applies: func(Transcript, Slots) bool { return true },
		Respond: func(Transcript, Slots) Template { panic("template table corrupted") },
	}
	_, err := NewEngine(WithRules([]Rule{boom})).Reply(Transcript{user("hola")})
	var ierr *InternalError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, "cascade", ierr.Stage)
}
