// Command scenario replays earthquake fixtures against a fleet fixture and
// prints the impact score, aftershock forecast and per-vessel threat table
// for each event. It runs the same domain code as the service, with no
// Kafka, store or channel gateway involved.
//
// Usage:
//
//	go run ./cmd/scenario \
//	  -events data/mock/earthquakes.json \
//	  -fleet data/mock/fleet.json \
//	  -min-severity low
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/tsunami-alert-service/internal/adapter/memory"
	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	eventsPath := flag.String("events", "data/mock/earthquakes.json", "JSON array of upstream earthquake messages")
	fleetPath := flag.String("fleet", "data/mock/fleet.json", "fleet fixture with vessel positions")
	minSeverity := flag.String("min-severity", "low", "lowest threat severity to print")
	elapsed := flag.Duration("elapsed", time.Hour, "time since each mainshock used for the forecast")
	flag.Parse()

	floor, err := domain.ParseSeverity(*minSeverity)
	if err != nil {
		return err
	}

	messages, err := readMessages(*eventsPath)
	if err != nil {
		return err
	}
	positions, _, err := memory.LoadFleet(*fleetPath)
	if err != nil {
		return err
	}
	vessels, err := positions.Positions(context.Background())
	if err != nil {
		return err
	}

	mask := domain.NewBoxOceanMask()
	scorer := domain.NewImpactScorer(mask)
	forecaster := domain.NewForecaster(mask)
	engine := domain.NewPropagationEngine(domain.NewBasinDepthHeuristic())

	out := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer out.Flush()

	for i, msg := range messages {
		src, format, err := domain.ParseEarthquakeMessage(domain.RawEvent{Value: msg, Timestamp: time.Now().UTC()})
		if err != nil {
			fmt.Fprintf(out, "\n[%d] rejected: %v\n", i, err)
			continue
		}

		score, err := scorer.Score(src)
		if err != nil {
			fmt.Fprintf(out, "\n[%d] %s rejected: %v\n", i, src.ID, err)
			continue
		}
		forecast, err := forecaster.Forecast(src, src.Timestamp.Add(*elapsed))
		if err != nil {
			return fmt.Errorf("forecast %s: %w", src.ID, err)
		}

		fmt.Fprintf(out, "\n[%d] %s  M%.1f  depth %.0f km  (%.2f, %.2f)  %s  format=%s\n",
			i, src.ID, src.Magnitude, src.DepthKm, src.Latitude, src.Longitude, src.Place, format)
		fmt.Fprintf(out, "    impact: %.1f %s  oceanic=%t  vessels~%d  lanes=%d  ports=%d\n",
			score.TotalScore, score.Priority, score.Oceanic, score.EstimatedVesselsInRange,
			len(score.ShippingLanes), len(score.NearbyPorts))
		fmt.Fprintf(out, "    forecast: tsunami possible=%t  recommendation=%s  confidence=%s  max aftershock M%.1f\n",
			forecast.TsunamiRisk.Possible, forecast.Recommendation, forecast.Confidence, forecast.MaxAftershockMagnitude)

		threats, err := engine.AssessFleet(context.Background(), src, vessels, 0)
		if err != nil {
			return fmt.Errorf("assess %s: %w", src.ID, err)
		}
		fmt.Fprintln(out, "    VESSEL\tSEVERITY\tDIST_KM\tWAVE_M\tETA_MIN\tDEPTH_M\tMODEL")
		for _, t := range threats {
			if !t.Severity.AtLeast(floor) {
				continue
			}
			fmt.Fprintf(out, "    %s\t%s\t%.0f\t%.2f\t%d\t%.0f\t%s\n",
				t.VesselID, t.Severity, t.DistanceKm, t.WaveHeightM, t.EtaMinutes, t.OceanDepthM, t.Model)
		}
		out.Flush()
	}
	return nil
}

func readMessages(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var messages []json.RawMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return messages, nil
}
