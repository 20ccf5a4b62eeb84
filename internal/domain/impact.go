package domain

import (
	"math"
	"sort"
)

// ImpactPriority is the operator-attention tier of an event.
type ImpactPriority string

const (
	PriorityCritical   ImpactPriority = "critical"
	PriorityHigh       ImpactPriority = "high"
	PriorityMedium     ImpactPriority = "medium"
	PriorityLow        ImpactPriority = "low"
	PriorityNegligible ImpactPriority = "negligible"
)

// Rank orders priorities from negligible (0) to critical (4). Unknown values
// rank -1.
func (p ImpactPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	case PriorityNegligible:
		return 0
	}
	return -1
}

// Sub-score caps. They sum to 100.
const (
	maxMagnitudeScore   = 30.0
	maxLaneScore        = 25.0
	maxTsunamiScore     = 25.0
	maxPortScore        = 15.0
	maxHistoricalScore  = 5.0
	portClusterBonus    = 5.0
	portClusterRadiusKm = 500.0
	nearbyRadiusKm      = 1000.0
	maxNearbyPorts      = 5
	vesselsPerLaneUnit  = 20.0
	shallowFocusKm      = 70.0
	intermediateFocusKm = 150.0
)

// ImpactBreakdown holds the five capped sub-scores.
type ImpactBreakdown struct {
	Magnitude             float64 `json:"magnitude"`
	ShippingLaneProximity float64 `json:"shippingLaneProximity"`
	TsunamiRisk           float64 `json:"tsunamiRisk"`
	PortDensity           float64 `json:"portDensity"`
	HistoricalImpact      float64 `json:"historicalImpact"`
}

// Total sums the sub-scores and bounds the result to [0, 100].
func (b ImpactBreakdown) Total() float64 {
	sum := b.Magnitude + b.ShippingLaneProximity + b.TsunamiRisk + b.PortDensity + b.HistoricalImpact
	return math.Min(100, math.Max(0, sum))
}

// NearbyPort is a port within range of an epicenter.
type NearbyPort struct {
	Name       string  `json:"name"`
	DistanceKm float64 `json:"distanceKm"`
	Importance float64 `json:"importance"`
}

// LaneExposure is a shipping lane within range of an epicenter.
type LaneExposure struct {
	Name       string  `json:"name"`
	DistanceKm float64 `json:"distanceKm"`
	Importance float64 `json:"importance"`
}

// MaritimeImpactScore prioritizes an earthquake for operator attention.
type MaritimeImpactScore struct {
	EventID                 string          `json:"eventId"`
	TotalScore              float64         `json:"totalScore"`
	Priority                ImpactPriority  `json:"priority"`
	Breakdown               ImpactBreakdown `json:"breakdown"`
	ShouldDisplay           bool            `json:"shouldDisplay"`
	ShouldAutoFetch         bool            `json:"shouldAutoFetch"`
	RefreshIntervalMs       *int64          `json:"refreshIntervalMs"`
	NearbyPorts             []NearbyPort    `json:"nearbyPorts"`
	ShippingLanes           []LaneExposure  `json:"shippingLanes"`
	EstimatedVesselsInRange int             `json:"estimatedVesselsInRange"`
	Oceanic                 bool            `json:"oceanic"`
}

// ClassifyImpactPriority maps a total score onto the priority tiers.
func ClassifyImpactPriority(total float64) ImpactPriority {
	switch {
	case total >= 75:
		return PriorityCritical
	case total >= 50:
		return PriorityHigh
	case total >= 30:
		return PriorityMedium
	case total >= 15:
		return PriorityLow
	default:
		return PriorityNegligible
	}
}

// RefreshInterval returns the polling interval in milliseconds for a
// priority, or nil when the event should not be polled.
func RefreshInterval(p ImpactPriority) *int64 {
	var ms int64
	switch p {
	case PriorityCritical:
		ms = 60_000
	case PriorityHigh:
		ms = 300_000
	case PriorityMedium:
		ms = 900_000
	default:
		return nil
	}
	return &ms
}

// ImpactScorer computes MaritimeImpactScores from fixed lane, port and region
// tables. It holds no mutable state and is safe for concurrent use.
type ImpactScorer struct {
	mask    OceanMask
	lanes   []ShippingLane
	ports   []Port
	regions []RiskRegion
}

// NewImpactScorer creates a scorer over the default tables. A nil mask uses
// NewBoxOceanMask.
func NewImpactScorer(mask OceanMask) *ImpactScorer {
	if mask == nil {
		mask = NewBoxOceanMask()
	}
	return &ImpactScorer{
		mask:    mask,
		lanes:   DefaultShippingLanes(),
		ports:   DefaultPorts(),
		regions: DefaultRiskRegions(),
	}
}

// Score computes the impact score for one earthquake.
func (s *ImpactScorer) Score(src EarthquakeSource) (MaritimeImpactScore, error) {
	if err := src.Validate(); err != nil {
		return MaritimeImpactScore{}, err
	}

	epicenter := GeoPoint{Lat: src.Latitude, Lon: src.Longitude}
	oceanic := s.mask.IsOceanic(epicenter)
	lanes := s.lanesWithin(epicenter, nearbyRadiusKm)
	ports := s.portsWithin(epicenter, nearbyRadiusKm)

	breakdown := ImpactBreakdown{
		Magnitude:             magnitudeScore(src.Magnitude),
		ShippingLaneProximity: s.laneScore(epicenter, oceanic),
		TsunamiRisk:           tsunamiRiskScore(src, oceanic),
		PortDensity:           portDensityScore(ports),
		HistoricalImpact:      s.historicalScore(epicenter, src.Magnitude),
	}
	total := math.Round(breakdown.Total()*100) / 100
	priority := ClassifyImpactPriority(total)

	if len(ports) > maxNearbyPorts {
		ports = ports[:maxNearbyPorts]
	}

	return MaritimeImpactScore{
		EventID:                 src.ID,
		TotalScore:              total,
		Priority:                priority,
		Breakdown:               breakdown,
		ShouldDisplay:           total >= 30 || src.TsunamiWarning,
		ShouldAutoFetch:         total >= 50 || src.TsunamiWarning,
		RefreshIntervalMs:       RefreshInterval(priority),
		NearbyPorts:             ports,
		ShippingLanes:           lanes,
		EstimatedVesselsInRange: s.estimateVessels(epicenter, src.Magnitude),
		Oceanic:                 oceanic,
	}, nil
}

func magnitudeScore(m float64) float64 {
	switch {
	case m >= 7.0:
		return 30
	case m >= 6.5:
		return 25
	case m >= 6.0:
		return 20
	case m >= 5.5:
		return 15
	case m >= 5.0:
		return 10
	case m >= 4.5:
		return 5
	}
	return 0
}

func laneDistanceFactor(distanceKm float64) float64 {
	switch {
	case distanceKm < 100:
		return 1
	case distanceKm < 300:
		return 0.75
	case distanceKm < 500:
		return 0.5
	case distanceKm < 1000:
		return 0.25
	}
	return 0
}

func (s *ImpactScorer) laneScore(epicenter GeoPoint, oceanic bool) float64 {
	if !oceanic || len(s.lanes) == 0 {
		return 0
	}
	nearest := s.lanes[0]
	best := math.Inf(1)
	for _, l := range s.lanes {
		if d := HaversineKm(epicenter, l.Point); d < best {
			best, nearest = d, l
		}
	}
	score := maxLaneScore * laneDistanceFactor(best) * nearest.Importance / 10
	return math.Min(maxLaneScore, score)
}

func tsunamiRiskScore(src EarthquakeSource, oceanic bool) float64 {
	switch {
	case src.TsunamiWarning:
		return 25
	case src.TsunamiWatch:
		return 20
	case !oceanic:
		return 0
	}

	var base float64
	switch {
	case src.Magnitude >= 7.5:
		base = 18
	case src.Magnitude >= 7.0:
		base = 14
	case src.Magnitude >= 6.5:
		base = 10
	case src.Magnitude >= 6.0:
		base = 6
	default:
		base = 2
	}

	depthFactor := 0.2
	switch {
	case src.DepthKm < shallowFocusKm:
		depthFactor = 1
	case src.DepthKm < intermediateFocusKm:
		depthFactor = 0.5
	}
	return math.Min(maxTsunamiScore, base*depthFactor)
}

func portDistanceScore(distanceKm float64) float64 {
	switch {
	case distanceKm < 100:
		return 10
	case distanceKm < 300:
		return 7
	case distanceKm < 500:
		return 4
	case distanceKm < 1000:
		return 2
	}
	return 0
}

// portDensityScore expects ports sorted by distance.
func portDensityScore(ports []NearbyPort) float64 {
	if len(ports) == 0 {
		return 0
	}
	score := portDistanceScore(ports[0].DistanceKm) * ports[0].Importance / 10

	clustered := 0
	for _, p := range ports {
		if p.DistanceKm < portClusterRadiusKm {
			clustered++
		}
	}
	if clustered >= 2 {
		score += portClusterBonus
	}
	return math.Min(maxPortScore, score)
}

func (s *ImpactScorer) historicalScore(epicenter GeoPoint, magnitude float64) float64 {
	for _, r := range s.regions {
		if r.Box.Contains(epicenter) && magnitude >= r.MinMagnitude {
			return maxHistoricalScore
		}
	}
	return 0
}

func (s *ImpactScorer) portsWithin(epicenter GeoPoint, radiusKm float64) []NearbyPort {
	out := []NearbyPort{}
	for _, p := range s.ports {
		if d := HaversineKm(epicenter, p.Point); d <= radiusKm {
			out = append(out, NearbyPort{Name: p.Name, DistanceKm: math.Round(d*10) / 10, Importance: p.Importance})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

func (s *ImpactScorer) lanesWithin(epicenter GeoPoint, radiusKm float64) []LaneExposure {
	out := []LaneExposure{}
	for _, l := range s.lanes {
		if d := HaversineKm(epicenter, l.Point); d <= radiusKm {
			out = append(out, LaneExposure{Name: l.Name, DistanceKm: math.Round(d*10) / 10, Importance: l.Importance})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// AffectedRadiusKm is the magnitude-tiered radius used for vessel estimates.
func AffectedRadiusKm(magnitude float64) float64 {
	switch {
	case magnitude >= 8:
		return 1000
	case magnitude >= 7:
		return 500
	case magnitude >= 6:
		return 250
	}
	return 100
}

func (s *ImpactScorer) estimateVessels(epicenter GeoPoint, magnitude float64) int {
	radius := AffectedRadiusKm(magnitude)
	var total float64
	for _, l := range s.lanes {
		d := HaversineKm(epicenter, l.Point)
		if d >= radius {
			continue
		}
		total += l.Importance * vesselsPerLaneUnit * (1 - d/radius)
	}
	return max(0, int(math.Round(total)))
}

// RankMaritimeEvents returns the scores sorted by TotalScore descending.
// Ties keep their input order. The input slice is not modified.
func RankMaritimeEvents(scores []MaritimeImpactScore) []MaritimeImpactScore {
	out := make([]MaritimeImpactScore, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalScore > out[j].TotalScore })
	return out
}

// FilterMaritimeEvents keeps scores whose priority is at least minPriority
// and, when displayableOnly is set, whose ShouldDisplay flag is true. An empty
// minPriority keeps every tier.
func FilterMaritimeEvents(scores []MaritimeImpactScore, minPriority ImpactPriority, displayableOnly bool) []MaritimeImpactScore {
	out := make([]MaritimeImpactScore, 0, len(scores))
	for _, s := range scores {
		if minPriority != "" && s.Priority.Rank() < minPriority.Rank() {
			continue
		}
		if displayableOnly && !s.ShouldDisplay {
			continue
		}
		out = append(out, s)
	}
	return out
}
