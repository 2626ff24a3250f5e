package emergency

import "strings"

// Contact is the user's emergency contact. Either field may be empty.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Known reports whether the contact can be shown and dialed.
func (c Contact) Known() bool {
	return strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Phone) != ""
}

// Hotline kinds.
const (
	HotlineSuicidePrevention = "suicide_prevention"
	HotlineEmergency         = "emergency"
	HotlineEmergencyContact  = "emergency_contact"
)

// Hotline is one number shown with every emergency screen.
type Hotline struct {
	Kind   string `json:"kind"`
	Label  string `json:"label"`
	Number string `json:"number"`
}

// Hotlines lists the numbers always rendered to a user in crisis. The contact is
// appended only when both name and phone are known.
func Hotlines(settings Settings, contact Contact) []Hotline {
	settings = settings.withDefaults()
	lines := []Hotline{
		{Kind: HotlineSuicidePrevention, Label: "Línea de Prevención del Suicidio", Number: settings.SuicideHotline},
		{Kind: HotlineEmergency, Label: "Emergencias", Number: settings.EmergencyNumber},
	}
	if contact.Known() {
		lines = append(lines, Hotline{
			Kind:   HotlineEmergencyContact,
			Label:  strings.TrimSpace(contact.Name),
			Number: strings.TrimSpace(contact.Phone),
		})
	}
	return lines
}
