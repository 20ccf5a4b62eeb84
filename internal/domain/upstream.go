package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// UpstreamFormat identifies which earthquake feed format a message used.
type UpstreamFormat string

const (
	FormatUSGSFeature UpstreamFormat = "usgs-feature"
	FormatFlat        UpstreamFormat = "flat"
)

// usgsFeature is a single GeoJSON Feature from the USGS real-time feeds.
type usgsFeature struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Properties struct {
		Mag       *float64 `json:"mag"`
		Place     string   `json:"place"`
		Time      *int64   `json:"time"`
		Tsunami   int      `json:"tsunami"`
		Alert     *string  `json:"alert"`
		FaultType string   `json:"faultType"`
	} `json:"properties"`
	Geometry struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

// flatEarthquake is the internal feed format. Required numeric fields are
// pointers so that absence is distinguishable from zero.
type flatEarthquake struct {
	ID             string    `json:"id"`
	Magnitude      *float64  `json:"magnitude"`
	DepthKm        *float64  `json:"depthKm"`
	Latitude       *float64  `json:"latitude"`
	Longitude      *float64  `json:"longitude"`
	FaultType      FaultType `json:"faultType"`
	FaultLengthKm  *float64  `json:"faultLengthKm"`
	FaultWidthKm   *float64  `json:"faultWidthKm"`
	FaultStrikeDeg *float64  `json:"faultStrikeDeg"`
	Timestamp      time.Time `json:"timestamp"`
	TsunamiWarning bool      `json:"tsunamiWarning"`
	TsunamiWatch   bool      `json:"tsunamiWatch"`
	Place          string    `json:"place"`
}

// DetectFormat classifies a payload without decoding it fully. Anything that
// is neither a GeoJSON Feature nor a flat record with a magnitude is
// rejected.
func DetectFormat(data []byte) (UpstreamFormat, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)
	}
	if t, ok := fields["type"]; ok && bytes.Equal(bytes.TrimSpace(t), []byte(`"Feature"`)) {
		return FormatUSGSFeature, nil
	}
	if _, ok := fields["magnitude"]; ok {
		return FormatFlat, nil
	}
	return "", ErrUnrecognizedPayload
}

// ParseEarthquakeMessage decodes a feed message into a validated
// EarthquakeSource. Missing required fields and out-of-range values fail
// closed; nothing is defaulted except the id (derived from the content) and
// the timestamp (taken from the message when absent).
func ParseEarthquakeMessage(raw RawEvent) (EarthquakeSource, UpstreamFormat, error) {
	format, err := DetectFormat(raw.Value)
	if err != nil {
		return EarthquakeSource{}, "", err
	}

	var src EarthquakeSource
	switch format {
	case FormatUSGSFeature:
		src, err = parseUSGSFeature(raw.Value)
	case FormatFlat:
		src, err = parseFlat(raw.Value)
	}
	if err != nil {
		return EarthquakeSource{}, format, err
	}

	if src.Timestamp.IsZero() {
		src.Timestamp = raw.Timestamp
	}
	if src.ID == "" {
		src.ID = generateSourceID(src)
	}
	if err := src.Validate(); err != nil {
		return EarthquakeSource{}, format, err
	}
	return src, format, nil
}

func parseUSGSFeature(data []byte) (EarthquakeSource, error) {
	var f usgsFeature
	if err := json.Unmarshal(data, &f); err != nil {
		return EarthquakeSource{}, fmt.Errorf("%w: usgs feature: %v", ErrUnrecognizedPayload, err)
	}
	if f.Properties.Mag == nil {
		return EarthquakeSource{}, fmt.Errorf("%w: usgs feature without magnitude", ErrUnrecognizedPayload)
	}
	if f.Geometry.Type != "Point" || len(f.Geometry.Coordinates) < 3 {
		return EarthquakeSource{}, fmt.Errorf("%w: usgs feature geometry must be a 3D point", ErrUnrecognizedPayload)
	}

	src := EarthquakeSource{
		ID:        f.ID,
		Magnitude: *f.Properties.Mag,
		Longitude: f.Geometry.Coordinates[0],
		Latitude:  f.Geometry.Coordinates[1],
		DepthKm:   f.Geometry.Coordinates[2],
		FaultType: FaultType(f.Properties.FaultType),
		Place:     f.Properties.Place,
		// The USGS flag marks large oceanic events; it is not an issued warning.
		TsunamiWatch: f.Properties.Tsunami == 1,
	}
	if f.Properties.Alert != nil && *f.Properties.Alert == "red" && src.TsunamiWatch {
		src.TsunamiWarning = true
	}
	if f.Properties.Time != nil {
		src.Timestamp = time.UnixMilli(*f.Properties.Time).UTC()
	}
	return src, nil
}

func parseFlat(data []byte) (EarthquakeSource, error) {
	var f flatEarthquake
	if err := json.Unmarshal(data, &f); err != nil {
		return EarthquakeSource{}, fmt.Errorf("%w: flat record: %v", ErrUnrecognizedPayload, err)
	}
	switch {
	case f.Magnitude == nil:
		return EarthquakeSource{}, fmt.Errorf("%w: flat record without magnitude", ErrUnrecognizedPayload)
	case f.Latitude == nil || f.Longitude == nil:
		return EarthquakeSource{}, fmt.Errorf("%w: flat record without coordinates", ErrUnrecognizedPayload)
	case f.DepthKm == nil:
		return EarthquakeSource{}, fmt.Errorf("%w: flat record without depth", ErrUnrecognizedPayload)
	}

	return EarthquakeSource{
		ID:             f.ID,
		Magnitude:      *f.Magnitude,
		DepthKm:        *f.DepthKm,
		Latitude:       *f.Latitude,
		Longitude:      *f.Longitude,
		FaultType:      f.FaultType,
		FaultLengthKm:  f.FaultLengthKm,
		FaultWidthKm:   f.FaultWidthKm,
		FaultStrikeDeg: f.FaultStrikeDeg,
		Timestamp:      f.Timestamp,
		TsunamiWarning: f.TsunamiWarning,
		TsunamiWatch:   f.TsunamiWatch,
		Place:          f.Place,
	}, nil
}

// generateSourceID derives a stable id so that replays of the same record
// map onto the same alerts.
func generateSourceID(src EarthquakeSource) string {
	input := fmt.Sprintf("%.4f|%.4f|%.1f|%g|%d", src.Latitude, src.Longitude, src.DepthKm, src.Magnitude, src.Timestamp.Unix())
	hash := sha256.Sum256([]byte(input))
	return "eq-" + hex.EncodeToString(hash[:8])
}
