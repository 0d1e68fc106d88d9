package points

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// DistributionParams are the fitted Normal-Inverse-Gaussian parameters for
// one leaderboard, plus the cached normalizing constant top_scale = sf at
// the leaderboard's best (lowest) time, so that the top run maps to L = 1.
type DistributionParams struct {
	Alpha    float64
	Beta     float64
	Mu       float64
	Delta    float64
	TopScale float64
}

// FitNIG fits a Normal-Inverse-Gaussian distribution to a leaderboard's
// times via the method-of-moments estimator (Barndorff-Nielsen's moment
// inversion from mean/variance/skewness/excess-kurtosis). Called
// off-thread per spec.md §4.7/§9 — the caller is expected to run this on a
// blocking worker, not the request-handling goroutine.
func FitNIG(times []float64) (DistributionParams, error) {
	mean := stat.Mean(times, nil)
	variance := stat.Variance(times, nil)
	skew := stat.Skew(times, nil)
	exKurt := stat.ExKurtosis(times, nil)

	denom := 3*exKurt - 4*skew*skew
	if denom <= 0 || variance <= 0 {
		return DistributionParams{}, errNonIdentifiable
	}

	r2 := skew * skew / denom
	if r2 >= 1 {
		r2 = 0.999
	}
	r := math.Sqrt(r2)
	if skew < 0 {
		r = -r
	}

	dg := 9 / denom // delta*gamma
	if dg <= 0 {
		return DistributionParams{}, errNonIdentifiable
	}

	gamma := math.Sqrt(dg / (variance * (1 - r*r)))
	delta := dg / gamma
	alpha := gamma / math.Sqrt(1-r*r)
	beta := r * alpha
	mu := mean - delta*beta/gamma

	params := DistributionParams{Alpha: alpha, Beta: beta, Mu: mu, Delta: delta}
	params.TopScale = SurvivalFunction(minFloat(times), params)
	if params.TopScale <= 0 {
		params.TopScale = 1
	}
	return params, nil
}

var errNonIdentifiable = fitError("points: leaderboard times do not admit a stable NIG fit")

type fitError string

func (e fitError) Error() string { return string(e) }

// PDF evaluates the NIG probability density at x.
func PDF(x float64, p DistributionParams) float64 {
	gamma := math.Sqrt(p.Alpha*p.Alpha - p.Beta*p.Beta)
	d := math.Hypot(p.Delta, x-p.Mu)
	k1 := besselK1(p.Alpha * d)
	return (p.Alpha * p.Delta * k1) / (math.Pi * d) * math.Exp(p.Delta*gamma+p.Beta*(x-p.Mu))
}

// SurvivalFunction computes sf(t) = 1 - CDF(t) by integrating the PDF from
// t out to a far upper bound via gonum's trapezoidal quadrature over a
// dense sample grid.
func SurvivalFunction(t float64, p DistributionParams) float64 {
	upper := t + 20*spread(p)
	return integratePDF(t, upper, p, 512)
}

// IntegratePDF integrates the PDF between t1 and t2 (t1 <= t2), the
// "pdf_integrate" operation spec.md §4.5 uses to derive per-rank L
// incrementally instead of calling the survival function from scratch for
// every rank.
func IntegratePDF(t1, t2 float64, p DistributionParams) float64 {
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	return integratePDF(t1, t2, p, 64)
}

func integratePDF(from, to float64, p DistributionParams, steps int) float64 {
	if to <= from {
		return 0
	}
	xs := make([]float64, steps+1)
	ys := make([]float64, steps+1)
	step := (to - from) / float64(steps)
	for i := range xs {
		xs[i] = from + step*float64(i)
		ys[i] = PDF(xs[i], p)
	}
	return integrate.Trapezoidal(xs, ys)
}

func spread(p DistributionParams) float64 {
	gamma := math.Sqrt(p.Alpha*p.Alpha - p.Beta*p.Beta)
	if gamma <= 0 {
		return p.Delta + 1
	}
	return p.Delta / gamma
}

func minFloat(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return sorted[0]
}

// besselK1 approximates the modified Bessel function of the second kind,
// order 1, via the rational approximations in Abramowitz & Stegun 9.8.
func besselK1(x float64) float64 {
	if x <= 2 {
		t := x * x / 4
		s := (x / 3.75) * (x / 3.75)
		i1 := x * (0.5 + s*(0.87890594+s*(0.51498869+s*(0.15084934+s*(0.02658733+s*(0.00301532+s*0.00032411))))))
		return math.Log(x/2)*i1 + (1/x)*(1+t*(0.15443144+t*(-0.67278579+t*(-0.18156897+t*(-0.01919402+t*(-0.00110404-t*0.00004686))))))
	}
	t := 2 / x
	return math.Exp(-x) / math.Sqrt(x) * (1.25331414 + t*(0.23498619+t*(-0.03655620+t*(0.01504268+t*(-0.00780353+t*(0.00325614-t*0.00068245))))))
}

// besselK0 approximates the modified Bessel function of the second kind,
// order 0, via the same reference.
func besselK0(x float64) float64 {
	if x <= 2 {
		t := x * x / 4
		s := (x / 3.75) * (x / 3.75)
		i0 := 1 + s*(3.5156229+s*(3.0899424+s*(1.2067492+s*(0.2659732+s*(0.0360768+s*0.0045813)))))
		ln := -math.Log(x / 2)
		return ln*i0 + (-0.57721566 + t*(0.42278420+t*(0.23069756+t*(0.03488590+t*(0.00262698+t*(0.00010750+t*0.00000740))))))
	}
	t := 2 / x
	return math.Exp(-x) / math.Sqrt(x) * (1.25331414 + t*(-0.07832358+t*(0.02189568+t*(-0.01062446+t*(0.00587872+t*(-0.00251540+t*0.00053208))))))
}
