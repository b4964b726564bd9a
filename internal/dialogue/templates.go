package dialogue

// DefaultBookingURL is the booking link sent when a prospect picks option 1.
const DefaultBookingURL = "https://calendly.com/juliangrowthoperator/30min"

// Override templates.
var (
	tplGreetingAskName = Template{Body: "Hey, soy Ani. Un gusto. ¿Cómo te llamas?"}
	tplGreetingRepeat  = Template{Body: "Jeje hola de nuevo. Pero en serio, ¿con quién hablo?"}

	tplCalendarLink = Template{Body: "Aquí lo tienes{callout}: {booking}\nCuando reserves, te llega invitación por Google Calendar.\n\n— Ani"}
	tplCalendarZone = Template{Body: "Perfecto. ¿En qué zona horaria estás?\n\n— Ani"}
	tplCalendarAsk  = Template{Body: "Si te cuadra, lo vemos 30 min y te lo dejo aterrizado. ¿Prefieres que te pase el link o me dices dos huecos y lo encajamos?"}

	tplCalendarClose = Template{Body: "Para no alargar esto por DM, lo mejor es verlo 30 min y te digo exactamente cómo lo montaría en tu caso.\n\nSi te viene bien, dos opciones:\nTe paso mi link y eliges un hueco.\nMe dices 2 horarios y te confirmo cuál encaja.\n\n¿Qué prefieres?"}

	tplPriceAskVolume = Template{Body: "Depende un poco del caso. Para decirte algo real, ¿tu ticket promedio es de cuánto o cuántos DMs te entran al día?"}
	tplPricePriority  = Template{Body: "Con el volumen y ticket que manejas, normalmente se ajusta por escala y complejidad. ¿Tu prioridad ahora mismo es automatizar para liberar tiempo o mejorar la conversión?"}

	tplSimulationReask = Template{Body: "¿Ahorita tu mayor problema es responder tarde o que llegan llamadas muy poco calificadas?"}

	tplTwoPathScript = Template{
		Body:     "Me queda claro. Para tu oferta, yo haría esto por DM:\n\nMensaje 1: gancho corto + 1 pregunta (situación).\nMensaje 2: 2 preguntas de fit (ticket + timing).\nSi encaja: llamada. Si no: recurso/seguimiento suave.\n\n¿Tú cierras por llamada o por checkout?",
		Empathic: true,
	}
)

// simulationExcerpt is one canned lead exchange used in the simulation.
type simulationExcerpt struct {
	Lead     string
	Response string
}

var (
	simulationDefault = simulationExcerpt{
		Lead:     "precio?",
		Response: "Hola, depende de qué estemos hablando. ¿Tu ticket promedio es de cuánto o cuántos DMs te entran al día?",
	}
	simulationAgency = simulationExcerpt{
		Lead:     "busco info del servicio de ads",
		Response: "Hola. Para afinar un poco, ¿estás invirtiendo en captación ahora mismo o es orgánico?",
	}
)

func simulationTemplate(ex simulationExcerpt) Template {
	return Template{Body: "(Ani): 'Hola, para saber si te podemos ayudar, ¿estás invirtiendo en ads actualmente?'\n" +
		"(Lead): '" + ex.Lead + "'\n" +
		"(Ani): '" + ex.Response + "'\n\n" +
		"Si te encaja, te dejo dos caminos:\n(a) aplicas y lo montamos contigo, o\n(b) me dices tu oferta en 1 línea y te armo el primer flujo aquí mismo."}
}

// Funnel templates.
var (
	tplAskName = Template{Body: "Hey, soy Ani. Un gusto. ¿Cómo te llamas?"}

	tplVerticalAfterName    = Template{Body: "Genial, {name}. ¿Eres creator/infoproductor o agencia?", Empathic: true}
	tplVerticalNameDeclined = Template{Body: "Cero problema. ¿Eres creator/infoproductor o agencia?", Empathic: true}
	tplVertical             = Template{Lead: "¡Genial! ", Body: "Para no darte respuestas genéricas, cuéntame: ¿tu proyecto actual es más de agencia o eres creator/infoproductor?", Empathic: true}

	tplVolumeAfterVertical = Template{Lead: "Sin problema. Para afinarlo un poco: ", Body: "¿tu ticket medio es de cuánto o cuántos DMs te entran al día, a ojo?", Empathic: true}
	tplVolume              = Template{Lead: "Vale, te pillo. ", Body: "¿Me dices tu ticket medio, más o menos, o cuántos DMs te entran al día?", Empathic: true}

	tplClosingStyle = Template{Lead: "Genial, así me cuadra. ", Body: "¿Ahora mismo cierras por llamada o por checkout?", Empathic: true}
	tplPainPoint    = Template{Lead: "Te hago una pregunta y con eso lo aterrizo: ", Body: "¿qué te está frenando más: responder tarde o filtrar curiosos?", Empathic: true}
	tplOfferSim     = Template{Lead: "Perfecto, entonces vamos al grano. ", Body: "Nosotros usamos un flujo inicial súper humano para arreglar eso. ¿Te importa si simulo 2 mensajes reales (lead + respuesta) para que veas cómo queda?", Empathic: true}
	tplChannel      = Template{Body: "Cuando puedas, ¿me confirmas si tu canal fuerte es Instagram o WhatsApp?", Empathic: true}
)
