// Command validate performs model integrity checks over the earthquake
// fixtures: every message parses into an in-range source, wave height never
// grows with distance, impact scores stay within bounds, and forecast
// probabilities are well formed.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -events data/mock/earthquakes.json \
//	  -fleet data/mock/fleet.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/tsunami-alert-service/internal/adapter/memory"
	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

// receivedAt stamps fixtures that carry no event time.
var receivedAt = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// parsed is one fixture message and the source decoded from it.
type parsed struct {
	index int
	src   domain.EarthquakeSource
}

func main() {
	eventsPath := flag.String("events", "data/mock/earthquakes.json", "JSON array of upstream earthquake messages")
	fleetPath := flag.String("fleet", "data/mock/fleet.json", "fleet fixture with vessel positions")
	flag.Parse()

	if code := run(*eventsPath, *fleetPath); code != 0 {
		os.Exit(code)
	}
}

func run(eventsPath, fleetPath string) int {
	fmt.Println("=== Tsunami Model Integrity Validation ===")
	fmt.Println()

	messages, err := loadMessages(eventsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load events: %v\n", err)
		return 1
	}

	positions, _, err := memory.LoadFleet(fleetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load fleet: %v\n", err)
		return 1
	}
	vessels, err := positions.Positions(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read fleet: %v\n", err)
		return 1
	}

	parsePhase, sources := validateParsing(messages)
	phases := []*phase{
		parsePhase,
		validateAttenuation(sources),
		validateFleetThreats(sources, vessels),
		validateImpactScores(sources),
		validateForecasts(sources),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d messages, %d parsed sources, %d vessels\n", len(messages), len(sources), len(vessels))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadMessages(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var messages []json.RawMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages in %s", path)
	}
	return messages, nil
}

// ── Phase 1: parsing ──

func validateParsing(messages []json.RawMessage) (*phase, []parsed) {
	p := &phase{name: "Phase 1: Upstream parsing & ranges"}
	sources := make([]parsed, 0, len(messages))
	seen := make(map[string]int, len(messages))

	for i, msg := range messages {
		src, _, err := domain.ParseEarthquakeMessage(domain.RawEvent{Value: msg, Timestamp: receivedAt})
		if err != nil {
			p.errorf("message %d: %v", i, err)
			continue
		}
		if src.ID == "" {
			p.errorf("message %d: no event id assigned", i)
		}
		if prev, dup := seen[src.ID]; dup {
			p.errorf("message %d: id %q already used by message %d", i, src.ID, prev)
		}
		seen[src.ID] = i
		if src.Timestamp.IsZero() {
			p.errorf("message %d (%s): zero timestamp", i, src.ID)
		}
		if err := src.Validate(); err != nil {
			p.errorf("message %d (%s): %v", i, src.ID, err)
			continue
		}
		sources = append(sources, parsed{index: i, src: src})
	}
	return p, sources
}

// ── Phase 2: attenuation ──

// validateAttenuation walks a meridian away from each epicenter and checks
// that wave height is non-increasing and arrival time non-decreasing.
func validateAttenuation(sources []parsed) *phase {
	p := &phase{name: "Phase 2: Wave attenuation monotonicity"}
	engine := domain.NewPropagationEngine(domain.NewBasinDepthHeuristic())

	for _, ps := range sources {
		step := 0.5
		if ps.src.Latitude > 0 {
			step = -0.5
		}

		prevHeight := math.Inf(1)
		prevDistance := -1.0
		for k := 1; k <= 60; k++ {
			lat := ps.src.Latitude + step*float64(k)
			if math.Abs(lat) >= 89 {
				break
			}
			vessel := domain.VesselPosition{VesselID: fmt.Sprintf("meridian-%d", k), Latitude: lat, Longitude: ps.src.Longitude}
			t, err := engine.AssessSource(ps.src, vessel)
			if err != nil {
				p.errorf("%s: step %d: %v", ps.src.ID, k, err)
				break
			}
			if t.DistanceKm <= prevDistance {
				p.errorf("%s: step %d distance %.1f km not beyond %.1f km", ps.src.ID, k, t.DistanceKm, prevDistance)
			}
			if t.WaveHeightM > prevHeight+1e-9 {
				p.errorf("%s: wave height rose from %.4f m to %.4f m at %.0f km", ps.src.ID, prevHeight, t.WaveHeightM, t.DistanceKm)
			}
			if t.WaveHeightM <= 0 || math.IsNaN(t.WaveHeightM) {
				p.errorf("%s: non-positive wave height %.4f at %.0f km", ps.src.ID, t.WaveHeightM, t.DistanceKm)
			}
			prevHeight, prevDistance = t.WaveHeightM, t.DistanceKm
		}
	}
	return p
}

// ── Phase 3: fleet threats ──

func validateFleetThreats(sources []parsed, vessels []domain.VesselPosition) *phase {
	p := &phase{name: "Phase 3: Fleet threat assessment"}
	engine := domain.NewPropagationEngine(domain.NewBasinDepthHeuristic())

	for _, ps := range sources {
		threats, err := engine.AssessFleet(context.Background(), ps.src, vessels, 4)
		if err != nil {
			p.errorf("%s: %v", ps.src.ID, err)
			continue
		}
		if len(threats) != len(vessels) {
			p.errorf("%s: %d assessments for %d vessels", ps.src.ID, len(threats), len(vessels))
			continue
		}
		for i, t := range threats {
			if t.VesselID != vessels[i].VesselID {
				p.errorf("%s: assessment %d is for %s, want %s", ps.src.ID, i, t.VesselID, vessels[i].VesselID)
			}
			if t.EventID != ps.src.ID {
				p.errorf("%s: assessment for %s carries event %q", ps.src.ID, t.VesselID, t.EventID)
			}
			if t.EtaMinutes < 0 {
				p.errorf("%s: %s negative eta %d", ps.src.ID, t.VesselID, t.EtaMinutes)
			}
			if want := domain.ClassifySeverity(t.WaveHeightM, t.DistanceKm); t.Severity != want {
				p.errorf("%s: %s severity %s, classifier says %s", ps.src.ID, t.VesselID, t.Severity, want)
			}
			wantModel := domain.ModelSimplified
			if ps.src.FaultType.Known() {
				wantModel = domain.ModelPhysics
			}
			if t.Model != wantModel {
				p.errorf("%s: %s model %s, want %s", ps.src.ID, t.VesselID, t.Model, wantModel)
			}
		}
	}
	return p
}

// ── Phase 4: impact scores ──

func validateImpactScores(sources []parsed) *phase {
	p := &phase{name: "Phase 4: Impact score bounds"}
	scorer := domain.NewImpactScorer(domain.NewBoxOceanMask())

	scores := make([]domain.MaritimeImpactScore, 0, len(sources))
	for _, ps := range sources {
		s, err := scorer.Score(ps.src)
		if err != nil {
			p.errorf("%s: %v", ps.src.ID, err)
			continue
		}
		if s.TotalScore < 0 || s.TotalScore > 100 {
			p.errorf("%s: total score %.2f outside [0, 100]", ps.src.ID, s.TotalScore)
		}
		if s.Priority.Rank() < 0 {
			p.errorf("%s: unknown priority %q", ps.src.ID, s.Priority)
		}
		if s.EventID != ps.src.ID {
			p.errorf("%s: score carries event %q", ps.src.ID, s.EventID)
		}
		if s.EstimatedVesselsInRange < 0 {
			p.errorf("%s: negative vessel estimate %d", ps.src.ID, s.EstimatedVesselsInRange)
		}
		scores = append(scores, s)
	}

	ranked := domain.RankMaritimeEvents(scores)
	for i := 1; i < len(ranked); i++ {
		if ranked[i].TotalScore > ranked[i-1].TotalScore {
			p.errorf("ranking: %s (%.2f) after %s (%.2f)",
				ranked[i].EventID, ranked[i].TotalScore, ranked[i-1].EventID, ranked[i-1].TotalScore)
		}
	}
	return p
}

// ── Phase 5: forecasts ──

func validateForecasts(sources []parsed) *phase {
	p := &phase{name: "Phase 5: Aftershock forecast probabilities"}
	forecaster := domain.NewForecaster(domain.NewBoxOceanMask())

	for _, ps := range sources {
		for _, elapsed := range []time.Duration{0, time.Hour, 24 * time.Hour, 30 * 24 * time.Hour} {
			f, err := forecaster.Forecast(ps.src, ps.src.Timestamp.Add(elapsed))
			if err != nil {
				p.errorf("%s: %v", ps.src.ID, err)
				break
			}
			if f.MainshockID != ps.src.ID {
				p.errorf("%s: forecast for %q", ps.src.ID, f.MainshockID)
			}
			if f.MaxAftershockMagnitude >= ps.src.Magnitude {
				p.errorf("%s: max aftershock M%.1f not below mainshock", ps.src.ID, f.MaxAftershockMagnitude)
			}
			for j, pr := range f.Probabilities {
				if pr.Probability <= 0 || pr.Probability > 1 || math.IsNaN(pr.Probability) {
					p.errorf("%s +%s: probability %.4f for M%.1f/%s outside (0, 1]", ps.src.ID, elapsed, pr.Probability, pr.Magnitude, pr.Timeframe)
				}
				if pr.ExpectedCount < 0 {
					p.errorf("%s +%s: negative expected count for M%.1f/%s", ps.src.ID, elapsed, pr.Magnitude, pr.Timeframe)
				}
				if j > 0 && pr.Magnitude > f.Probabilities[j-1].Magnitude {
					p.errorf("%s +%s: probabilities not ordered by magnitude", ps.src.ID, elapsed)
				}
			}
		}
	}
	return p
}
