package answers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
)

func TestFallbackReply(t *testing.T) {
	f := NewFallback("Luna", emergency.Settings{})

	crisisReply := f.Reply("estoy desesperado", crisis.TierGeneralCrisis)
	assert.Contains(t, crisisReply, "988")
	assert.Contains(t, crisisReply, "911")
	assert.Equal(t, f.CrisisReply(), crisisReply)

	assert.Contains(t, f.Reply("Hola, buenos días", crisis.TierNone), "Soy Luna")
	assert.Contains(t, f.Reply("¿Quién eres?", crisis.TierNone), "asistente virtual")
	assert.Contains(t, f.Reply("hoy fui al parque", crisis.TierNone), "Luna está aquí")
}

func TestFallbackDefaults(t *testing.T) {
	f := NewFallback("", emergency.Settings{EmergencyNumber: "112"})
	assert.Contains(t, f.Reply("hola", crisis.TierNone), DefaultCompanionName)
	assert.Contains(t, f.Reply("x", crisis.TierHighPriority), "112")
}
