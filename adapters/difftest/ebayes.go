package difftest

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

// prior is the scaled inverse chi-square prior on the residual variances.
type prior struct {
	d0  float64
	s02 float64
}

// fitPrior estimates d0 and s0^2 from the log residual variances by the
// method of moments (Smyth 2004). Variances with zero df or non-positive
// value are skipped. With fewer than two usable variances there is no prior.
func fitPrior(s2, df []float64) prior {
	var e, trig []float64
	for i, v := range s2 {
		d := df[i]
		if !(d > 0) || !(v > 0) || math.IsInf(v, 0) {
			continue
		}
		e = append(e, math.Log(v)-mathext.Digamma(d/2)+math.Log(d/2))
		trig = append(trig, trigamma(d/2))
	}
	n := len(e)
	if n < 2 {
		return prior{}
	}
	emean, tmean := 0.0, 0.0
	for i := range e {
		emean += e[i]
		tmean += trig[i]
	}
	emean /= float64(n)
	tmean /= float64(n)
	evar := 0.0
	for _, v := range e {
		evar += (v - emean) * (v - emean)
	}
	evar = evar/float64(n-1) - tmean

	if evar <= 0 {
		return prior{d0: math.Inf(1), s02: math.Exp(emean)}
	}
	d0 := 2 * trigammaInverse(evar)
	return prior{d0: d0, s02: math.Exp(emean + mathext.Digamma(d0/2) - math.Log(d0/2))}
}

// posterior shrinks s2 on d df towards the prior.
func (p prior) posterior(s2, d float64) (float64, float64) {
	switch {
	case p.d0 == 0:
		return s2, d
	case math.IsInf(p.d0, 1):
		return p.s02, math.Inf(1)
	case !(d > 0) || math.IsNaN(s2):
		return p.s02, p.d0
	}
	return (p.d0*p.s02 + d*s2) / (p.d0 + d), p.d0 + d
}

// trigamma is psi'(x) for x > 0: recurrence up to 6, then the asymptotic series.
func trigamma(x float64) float64 {
	acc := 0.0
	for x < 6 {
		acc += 1 / (x * x)
		x++
	}
	x2 := 1 / (x * x)
	series := 1/x + x2/2 + x2/x*(1.0/6-x2*(1.0/30-x2*(1.0/42-x2/30)))
	return acc + series
}

// tetragamma is psi”(x) for x > 0.
func tetragamma(x float64) float64 {
	acc := 0.0
	for x < 6 {
		acc -= 2 / (x * x * x)
		x++
	}
	x2 := 1 / (x * x)
	series := -x2 - x2/x - x2*x2*(0.5-x2*(1.0/6-x2*(1.0/6-x2*(3.0/10-x2*5.0/6))))
	return acc + series
}

// trigammaInverse solves trigamma(y) = x by Newton's method.
func trigammaInverse(x float64) float64 {
	if x > 1e7 {
		return 1 / math.Sqrt(x)
	}
	if x < 1e-6 {
		return 1 / x
	}
	y := 0.5 + 1/x
	for i := 0; i < 50; i++ {
		tri := trigamma(y)
		dif := tri * (1 - tri/x) / tetragamma(y)
		y += dif
		if -dif/y < 1e-8 {
			break
		}
	}
	return y
}
