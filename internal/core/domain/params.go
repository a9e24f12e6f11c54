package domain

import (
	"fmt"
	"math"
	"strings"
)

// BandwidthMethod selects how the KDE bandwidth factor is derived.
type BandwidthMethod string

const (
	// BandwidthScalar uses DetectionParams.Bandwidth directly as the factor.
	BandwidthScalar BandwidthMethod = "scalar"
	// BandwidthScott uses neff^(-1/6).
	BandwidthScott BandwidthMethod = "scott"
	// BandwidthSilverman uses (neff*(d+2)/4)^(-1/(d+4)).
	BandwidthSilverman BandwidthMethod = "silverman"
)

// DetectionParams tunes the missing-tree detector.
type DetectionParams struct {
	NumPoints           int             `json:"num_points" mapstructure:"num_points"`
	Bandwidth           float64         `json:"bandwidth" mapstructure:"bandwidth"`
	BandwidthMethod     BandwidthMethod `json:"bandwidth_method" mapstructure:"bandwidth_method"`
	ThresholdPercentile float64         `json:"threshold_percentile" mapstructure:"threshold_percentile"`
	InnerBuffer         float64         `json:"inner_buffer" mapstructure:"inner_buffer"`
	NeighborhoodSize    int             `json:"neighborhood_size" mapstructure:"neighborhood_size"`
}

// DefaultDetectionParams returns the values the production endpoint has
// always used for Aerobotics orchards.
func DefaultDetectionParams() DetectionParams {
	return DetectionParams{
		NumPoints:           200,
		Bandwidth:           0.007,
		BandwidthMethod:     BandwidthScalar,
		ThresholdPercentile: 0.12,
		InnerBuffer:         0.00008,
		NeighborhoodSize:    10,
	}
}

// MaxGridPoints bounds num_points so a single request cannot ask for an
// unbounded KDE evaluation.
const MaxGridPoints = 1000

// Validate checks every parameter and reports all violations at once.
func (p DetectionParams) Validate() error {
	var errs []string

	if p.NumPoints <= 1 || p.NumPoints > MaxGridPoints {
		errs = append(errs, fmt.Sprintf("num_points must be 2-%d, got %d", MaxGridPoints, p.NumPoints))
	}
	switch p.method() {
	case BandwidthScalar:
		if !(p.Bandwidth > 0) || math.IsInf(p.Bandwidth, 0) {
			errs = append(errs, fmt.Sprintf("bandwidth must be a positive number, got %v", p.Bandwidth))
		}
	case BandwidthScott, BandwidthSilverman:
	default:
		errs = append(errs, fmt.Sprintf("bandwidth_method must be scalar, scott or silverman, got %q", p.BandwidthMethod))
	}
	if !(p.ThresholdPercentile >= 0 && p.ThresholdPercentile <= 100) {
		errs = append(errs, fmt.Sprintf("threshold_percentile must be in [0,100], got %v", p.ThresholdPercentile))
	}
	if !(p.InnerBuffer >= 0) || math.IsInf(p.InnerBuffer, 0) {
		errs = append(errs, fmt.Sprintf("inner_buffer must be >= 0, got %v", p.InnerBuffer))
	}
	if p.NeighborhoodSize < 1 {
		errs = append(errs, fmt.Sprintf("neighborhood_size must be >= 1, got %d", p.NeighborhoodSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(errs, "; "))
	}
	return nil
}

// Method returns the bandwidth method, defaulting to scalar when unset.
func (p DetectionParams) Method() BandwidthMethod {
	return p.method()
}

func (p DetectionParams) method() BandwidthMethod {
	if p.BandwidthMethod == "" {
		return BandwidthScalar
	}
	return BandwidthMethod(strings.ToLower(string(p.BandwidthMethod)))
}
