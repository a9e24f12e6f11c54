// Package kde implements a weighted two-dimensional Gaussian kernel density
// estimate over geographic coordinates.
//
// The bandwidth convention matches scipy.stats.gaussian_kde:
//
//   - weights are normalised to sum to 1 and neff = 1 / Σw²
//   - the data covariance is the weighted unbiased covariance
//     Σ wᵢ(xᵢ-μ)(xᵢ-μ)ᵀ / (1 - Σw²)
//   - the kernel covariance is factor² times the data covariance
//   - a scalar bandwidth is used as factor unchanged; the Scott rule uses
//     neff^(-1/6) and the Silverman rule (neff·(d+2)/4)^(-1/(d+4)), which
//     for d = 2 reduces to the same value
//
// Coordinates are used directly in degree space with lat as the first axis.
package kde

import (
	"fmt"
	"math"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

const dims = 2

// Bandwidth selects the kernel bandwidth factor.
type Bandwidth struct {
	Method domain.BandwidthMethod
	Factor float64 // used only by the scalar method
}

// Scalar returns a fixed bandwidth factor.
func Scalar(factor float64) Bandwidth {
	return Bandwidth{Method: domain.BandwidthScalar, Factor: factor}
}

// factorFor resolves the bandwidth factor for the effective sample size.
func (b Bandwidth) factorFor(neff float64) (float64, error) {
	switch b.Method {
	case domain.BandwidthScalar, "":
		if !(b.Factor > 0) || math.IsInf(b.Factor, 0) {
			return 0, fmt.Errorf("%w: bandwidth must be positive, got %v", domain.ErrInvalidParams, b.Factor)
		}
		return b.Factor, nil
	case domain.BandwidthScott:
		return math.Pow(neff, -1.0/(dims+4)), nil
	case domain.BandwidthSilverman:
		return math.Pow(neff*(dims+2)/4, -1.0/(dims+4)), nil
	default:
		return 0, fmt.Errorf("%w: unknown bandwidth method %q", domain.ErrInvalidParams, b.Method)
	}
}

// Estimator is a fitted kernel density estimate. It is immutable and safe
// for concurrent use.
type Estimator struct {
	lat, lng []float64
	weights  []float64 // normalised

	neff   float64
	factor float64
	cov    [3]float64 // data covariance: xx, yy, xy

	// inverse kernel covariance and normalisation constant
	ixx, iyy, ixy float64
	norm          float64
}

// New fits the estimator. Every weight must be finite and positive, and the
// positions must span two dimensions.
func New(positions []domain.Coordinate, weights []float64, bw Bandwidth) (*Estimator, error) {
	if len(positions) != len(weights) {
		return nil, fmt.Errorf("%w: %d positions but %d weights", domain.ErrInvalidParams, len(positions), len(weights))
	}
	if len(positions) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 trees, got %d", domain.ErrInsufficientData, len(positions))
	}

	var total float64
	for i, w := range weights {
		if !(w > 0) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: weight %d is %v, must be positive", domain.ErrDegenerateInput, i, w)
		}
		p := positions[i]
		if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
			return nil, fmt.Errorf("%w: position %d is not finite", domain.ErrDegenerateInput, i)
		}
		total += w
	}

	e := &Estimator{
		lat:     make([]float64, len(positions)),
		lng:     make([]float64, len(positions)),
		weights: make([]float64, len(weights)),
	}

	var sumSq, meanLat, meanLng float64
	for i, p := range positions {
		w := weights[i] / total
		e.lat[i], e.lng[i], e.weights[i] = p.Lat, p.Lng, w
		sumSq += w * w
		meanLat += w * p.Lat
		meanLng += w * p.Lng
	}
	e.neff = 1 / sumSq

	var cxx, cyy, cxy float64
	for i := range e.lat {
		dx, dy := e.lat[i]-meanLat, e.lng[i]-meanLng
		cxx += e.weights[i] * dx * dx
		cyy += e.weights[i] * dy * dy
		cxy += e.weights[i] * dx * dy
	}
	denom := 1 - sumSq
	cxx, cyy, cxy = cxx/denom, cyy/denom, cxy/denom
	e.cov = [3]float64{cxx, cyy, cxy}

	det := cxx*cyy - cxy*cxy
	if cxx <= 0 || cyy <= 0 || det <= 1e-12*cxx*cyy {
		return nil, fmt.Errorf("%w: tree positions are identical or collinear", domain.ErrDegenerateInput)
	}

	factor, err := bw.factorFor(e.neff)
	if err != nil {
		return nil, err
	}
	e.factor = factor

	f2 := factor * factor
	kxx, kyy, kxy := cxx*f2, cyy*f2, cxy*f2
	kdet := kxx*kyy - kxy*kxy
	e.ixx, e.iyy, e.ixy = kyy/kdet, kxx/kdet, -kxy/kdet
	e.norm = 1 / (2 * math.Pi * math.Sqrt(kdet))

	return e, nil
}

// At evaluates the density at c.
func (e *Estimator) At(c domain.Coordinate) float64 {
	var sum float64
	for i := range e.lat {
		dx, dy := c.Lat-e.lat[i], c.Lng-e.lng[i]
		q := dx*dx*e.ixx + 2*dx*dy*e.ixy + dy*dy*e.iyy
		sum += e.weights[i] * math.Exp(-q/2)
	}
	return sum * e.norm
}

// Factor is the resolved bandwidth factor.
func (e *Estimator) Factor() float64 { return e.factor }

// EffectiveSampleSize is 1/Σw² of the normalised weights.
func (e *Estimator) EffectiveSampleSize() float64 { return e.neff }

// Covariance returns the weighted data covariance as (latlat, lnglng, latlng).
func (e *Estimator) Covariance() (xx, yy, xy float64) {
	return e.cov[0], e.cov[1], e.cov[2]
}
