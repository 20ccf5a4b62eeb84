// Package domain models earthquake-driven maritime threats: the tsunami source
// model, wave propagation to a vessel, maritime impact scoring, aftershock
// forecasting, and the Alert / DeliveryLog records the dispatcher maintains.
//
// # Source Model
//
// Initial tsunami amplitude is derived from seismic moment:
//
//	M0    = 10^(1.5·Mw + 9.1) N·m
//	L     = 10^(0.5·Mw − 1.8) km     (when fault length is not supplied)
//	W     = 10^(0.25·Mw − 0.8) km    (when fault width is not supplied)
//	slip  = M0 / (μ · L · W),  μ = 3×10¹⁰ Pa
//
// Vertical seafloor displacement depends on fault mechanism:
//
//	thrust:      slip · sin(15°)
//	normal:      slip · sin(60°) · 0.5
//	strike-slip: slip · 0.1
//
// and is attenuated by hypocentral depth with exp(−depth/50 km). The 50 km
// constant is a fixed modelling choice, not a derived value.
//
// # Propagation
//
// Wave height at an observer is
//
//	A · 1/√(d/100 + 1) · directivity · faultMultiplier,  floored at 0.01 m
//
// where directivity is 0.3 + 0.7·|sin(azimuth − strike)| when the strike is
// known. Speed uses the shallow-water relation √(g·h) with an ocean depth h
// taken from a [DepthEstimator]; the default [BasinDepthHeuristic] is a coarse
// distance-from-basin-centre placeholder for real bathymetry.
//
// Severity is an OR ladder over wave height and distance, so proximity alone
// can escalate a negligible wave:
//
//	critical: h > 5 m   or d < 100 km
//	high:     h > 2 m   or d < 300 km
//	moderate: h > 0.5 m or d < 500 km
//	low:      h > 0.1 m or d < 1000 km
//	minimal:  otherwise
//
// # Geography Tables
//
// Shipping lanes, ports, oceanic bounding boxes and historical high-risk
// regions are small fixed tables in maritime.go. They are approximations meant
// to be swapped for real land/sea and traffic data behind [OceanMask].
//
// # Aftershocks
//
// Forecasts combine Båth's law (largest aftershock ≈ Mw − 1.2),
// Gutenberg-Richter scaling (b = 1.0) and Omori-Utsu decay (p = 1.1,
// c = 0.05 days). The parameters are generic and not regionally calibrated.
package domain
