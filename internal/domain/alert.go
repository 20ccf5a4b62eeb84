package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidAlert is returned when an alert or its recipients fail
	// validation before any delivery is attempted.
	ErrInvalidAlert = errors.New("invalid alert")

	// ErrConflict is matched by *ConflictError.
	ErrConflict = errors.New("active alert already exists")

	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// ConflictError reports an attempt to create a second active alert for the
// same asset and event. Existing is the record already stored.
type ConflictError struct {
	Existing Alert
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: alert %s for asset %s event %s", ErrConflict, e.Existing.ID, e.Existing.AssetID, e.Existing.EventID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// EventTypeTsunami is the event type of alerts raised from wave assessments.
const EventTypeTsunami = "tsunami"

// AlertStatus is the lifecycle state of an Alert.
type AlertStatus string

const (
	AlertPending      AlertStatus = "pending"
	AlertSent         AlertStatus = "sent"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertExpired      AlertStatus = "expired"
)

// Active reports whether the status counts toward the one-active-alert rule.
func (s AlertStatus) Active() bool {
	return s == AlertPending || s == AlertSent || s == AlertAcknowledged
}

// Channel is a notification transport.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelVoice    Channel = "voice"
)

// Channels lists every channel in resolution order.
var Channels = []Channel{ChannelSMS, ChannelEmail, ChannelWhatsApp, ChannelVoice}

// DeliveryStatus is the state of one (contact, channel) delivery.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Alert is a notification raised for one asset about one event.
type Alert struct {
	ID             string                  `json:"id"`
	AssetID        string                  `json:"assetId"`
	EventID        string                  `json:"eventId"`
	EventType      string                  `json:"eventType"`
	Severity       Severity                `json:"severity"`
	Coordinates    GeoPoint                `json:"coordinates"`
	Message        string                  `json:"message"`
	Recommendation string                  `json:"recommendation"`
	Status         AlertStatus             `json:"status"`
	ExpiresAt      time.Time               `json:"expiresAt"`
	CreatedAt      time.Time               `json:"createdAt"`
	UpdatedAt      time.Time               `json:"updatedAt"`
	Threat         *VesselThreatAssessment `json:"threat,omitempty"`
}

// Validate checks the fields required before dispatch.
func (a Alert) Validate() error {
	var missing []string
	if strings.TrimSpace(a.AssetID) == "" {
		missing = append(missing, "assetId")
	}
	if strings.TrimSpace(a.EventID) == "" {
		missing = append(missing, "eventId")
	}
	if strings.TrimSpace(a.Message) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidAlert, strings.Join(missing, ", "))
	}
	if a.Severity.Rank() < 0 {
		return fmt.Errorf("%w: severity %q", ErrInvalidAlert, a.Severity)
	}
	if !validCoordinate(a.Coordinates.Lat, a.Coordinates.Lon) {
		return fmt.Errorf("%w: coordinates (%g, %g)", ErrInvalidAlert, a.Coordinates.Lat, a.Coordinates.Lon)
	}
	return nil
}

// ExpiredAt reports whether an active alert has passed its expiry time.
func (a Alert) ExpiredAt(now time.Time) bool {
	return a.Status.Active() && !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// DeliveryLog records one delivery attempt to one contact over one channel.
type DeliveryLog struct {
	ID                string         `json:"id"`
	AlertID           string         `json:"alertId"`
	ContactID         string         `json:"contactId"`
	Channel           Channel        `json:"channel"`
	Destination       string         `json:"destination"`
	Status            DeliveryStatus `json:"status"`
	Attempts          int            `json:"attempts"`
	LastAttemptAt     *time.Time     `json:"lastAttemptAt,omitempty"`
	DeliveredAt       *time.Time     `json:"deliveredAt,omitempty"`
	ErrorMessage      *string        `json:"errorMessage,omitempty"`
	ProviderMessageID string         `json:"providerMessageId,omitempty"`
}

// Contact is a person notified about alerts for an asset.
type Contact struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	WhatsApp      string `json:"whatsapp,omitempty"`
	WhatsAppOptIn bool   `json:"whatsappOptIn,omitempty"`
}

// NewThreatAlert builds a pending alert from a vessel assessment. The
// assessment is kept as a snapshot.
func NewThreatAlert(id string, src EarthquakeSource, threat VesselThreatAssessment, now time.Time, ttl time.Duration) Alert {
	snapshot := threat
	return Alert{
		ID:             id,
		AssetID:        threat.VesselID,
		EventID:        src.ID,
		EventType:      EventTypeTsunami,
		Severity:       threat.Severity,
		Coordinates:    threat.Position,
		Message:        ThreatMessage(src, threat),
		Recommendation: ThreatRecommendation(threat.Severity),
		Status:         AlertPending,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
		UpdatedAt:      now,
		Threat:         &snapshot,
	}
}

// ThreatMessage renders the notification text for an assessment.
func ThreatMessage(src EarthquakeSource, threat VesselThreatAssessment) string {
	where := ""
	if src.Place != "" {
		where = " " + src.Place
	}
	return fmt.Sprintf("TSUNAMI %s: M%.1f earthquake%s, %.0f km away. Estimated wave %.1f m, arrival in %d min.",
		strings.ToUpper(string(threat.Severity)), src.Magnitude, where, threat.DistanceKm, threat.WaveHeightM, threat.EtaMinutes)
}

// ThreatRecommendation returns the standing guidance for a severity.
func ThreatRecommendation(s Severity) string {
	switch s {
	case SeverityCritical:
		return "Move to water deeper than 200 m immediately and stay clear of the coast."
	case SeverityHigh:
		return "Proceed to deep water and avoid harbours and narrow channels."
	case SeverityModerate:
		return "Stay clear of shallow water and harbour entrances. Monitor official channels."
	case SeverityLow:
		return "Monitor official channels for updates."
	default:
		return "No action required."
	}
}
