package answers

import (
	"fmt"
	"regexp"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
)

// DefaultCompanionName is used when no companion name is configured.
const DefaultCompanionName = "MentalCare AI"

var (
	greetingPattern = regexp.MustCompile(`(?i)\b(hola|buen[ao]s (d[íi]as|tardes|noches)|qu[eé] tal)\b`)
	identityPattern = regexp.MustCompile(`(?i)\b(qui[eé]n eres|qu[eé] eres|para qu[eé] sirves)\b`)
)

// Fallback builds the templated reply for utterances with no canned answer.
type Fallback struct {
	companion string
	settings  emergency.Settings
}

func NewFallback(companionName string, settings emergency.Settings) *Fallback {
	if companionName == "" {
		companionName = DefaultCompanionName
	}
	if settings.EmergencyNumber == "" {
		settings.EmergencyNumber = emergency.DefaultEmergencyNumber
	}
	if settings.SuicideHotline == "" {
		settings.SuicideHotline = emergency.DefaultSuicideHotline
	}
	return &Fallback{companion: companionName, settings: settings}
}

// Reply picks a supportive crisis reply whenever the verdict carries a crisis signal,
// otherwise a greeting, identity or acknowledgement reply.
func (f *Fallback) Reply(text string, tier crisis.Tier) string {
	if tier == crisis.TierHighPriority || tier == crisis.TierGeneralCrisis {
		return f.CrisisReply()
	}
	if greetingPattern.MatchString(text) {
		return fmt.Sprintf("¡Hola! Soy %s, tu asistente de IA para apoyo en salud mental. ¿Cómo puedo ayudarte hoy?", f.companion)
	}
	if identityPattern.MatchString(text) {
		return fmt.Sprintf("Soy %s, un asistente virtual diseñado para ofrecer información general y apoyo en temas de salud mental. No sustituyo a un profesional.", f.companion)
	}
	return fmt.Sprintf("Gracias por compartir esto conmigo. %s está aquí para escucharte.", f.companion)
}

// CrisisReply is the supportive reply with both hotline numbers. It is also sent for
// every message received while an emergency is in progress.
func (f *Fallback) CrisisReply() string {
	return fmt.Sprintf(
		"Entiendo que estás pasando por un momento extremadamente difícil. No estás solo. "+
			"Llama a la Línea de Prevención del Suicidio al %s o al %s si estás en peligro inmediato.",
		f.settings.SuicideHotline, f.settings.EmergencyNumber,
	)
}
