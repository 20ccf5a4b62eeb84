package dispatch

import (
	"strings"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

// VoicePolicy decides whether an alert warrants a voice call.
type VoicePolicy interface {
	AllowVoice(alert domain.Alert) bool
}

// MinSeverityVoicePolicy allows voice calls at or above Min.
type MinSeverityVoicePolicy struct {
	Min domain.Severity
}

func (p MinSeverityVoicePolicy) AllowVoice(alert domain.Alert) bool {
	return alert.Severity.AtLeast(p.Min)
}

// Target is one (contact, channel) pair with its resolved destination.
type Target struct {
	Contact     domain.Contact
	Channel     domain.Channel
	Destination string
}

// ResolveChannels expands contacts into delivery targets:
//   - sms when the contact has a phone
//   - email when the contact has an email address
//   - whatsapp to the WhatsApp number, or to the phone when the contact opted in
//   - voice to the phone when the policy allows it
//
// A contact id appearing twice contributes its channels once.
func ResolveChannels(contacts []domain.Contact, alert domain.Alert, voice VoicePolicy) []Target {
	allowVoice := voice != nil && voice.AllowVoice(alert)

	var targets []Target
	seen := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}

		phone := strings.TrimSpace(c.Phone)
		email := strings.TrimSpace(c.Email)
		whatsapp := strings.TrimSpace(c.WhatsApp)

		if phone != "" {
			targets = append(targets, Target{Contact: c, Channel: domain.ChannelSMS, Destination: phone})
		}
		if email != "" {
			targets = append(targets, Target{Contact: c, Channel: domain.ChannelEmail, Destination: email})
		}
		switch {
		case whatsapp != "":
			targets = append(targets, Target{Contact: c, Channel: domain.ChannelWhatsApp, Destination: whatsapp})
		case c.WhatsAppOptIn && phone != "":
			targets = append(targets, Target{Contact: c, Channel: domain.ChannelWhatsApp, Destination: phone})
		}
		if allowVoice && phone != "" {
			targets = append(targets, Target{Contact: c, Channel: domain.ChannelVoice, Destination: phone})
		}
	}
	return targets
}

func recipientCount(targets []Target) int {
	ids := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		ids[t.Contact.ID] = struct{}{}
	}
	return len(ids)
}
