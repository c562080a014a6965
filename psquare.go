package executor

import (
	"math"
	"slices"
)

// pSquare estimates a single quantile in constant space, using the P²
// algorithm (Jain and Chlamtac, 1985). It is not safe for concurrent use.
type pSquare struct {
	// q holds marker heights, n actual marker positions, np desired
	// positions, and dn the desired position increments
	q     [5]float64
	n     [5]float64
	np    [5]float64
	dn    [5]float64
	p     float64
	count int
}

func newPSquare(p float64) *pSquare {
	p = min(max(p, 0), 1)
	return &pSquare{
		p:  p,
		dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

func (ps *pSquare) Update(x float64) {
	ps.count++

	if ps.count <= 5 {
		ps.q[ps.count-1] = x
		if ps.count == 5 {
			slices.Sort(ps.q[:])
			ps.n = [5]float64{0, 1, 2, 3, 4}
			ps.np = [5]float64{0, 2 * ps.p, 4 * ps.p, 2 + 2*ps.p, 4}
		}
		return
	}

	var k int
	switch {
	case x < ps.q[0]:
		ps.q[0] = x
	case x >= ps.q[4]:
		ps.q[4] = x
		k = 3
	default:
		for k = 0; k < 3; k++ {
			if x < ps.q[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		ps.n[i]++
	}
	for i := range ps.np {
		ps.np[i] += ps.dn[i]
	}

	for i := 1; i < 4; i++ {
		d := ps.np[i] - ps.n[i]
		if (d >= 1 && ps.n[i+1]-ps.n[i] > 1) || (d <= -1 && ps.n[i-1]-ps.n[i] < -1) {
			sign := math.Copysign(1, d)
			if h := ps.parabolic(i, sign); ps.q[i-1] < h && h < ps.q[i+1] {
				ps.q[i] = h
			} else {
				ps.q[i] = ps.linear(i, sign)
			}
			ps.n[i] += sign
		}
	}
}

func (ps *pSquare) parabolic(i int, d float64) float64 {
	return ps.q[i] + d/(ps.n[i+1]-ps.n[i-1])*
		((ps.n[i]-ps.n[i-1]+d)*(ps.q[i+1]-ps.q[i])/(ps.n[i+1]-ps.n[i])+
			(ps.n[i+1]-ps.n[i]-d)*(ps.q[i]-ps.q[i-1])/(ps.n[i]-ps.n[i-1]))
}

func (ps *pSquare) linear(i int, d float64) float64 {
	j := i + int(d)
	return ps.q[i] + d*(ps.q[j]-ps.q[i])/(ps.n[j]-ps.n[i])
}

// Quantile returns the current estimate. With fewer than five observations
// it is exact.
func (ps *pSquare) Quantile() float64 {
	switch {
	case ps.count == 0:
		return 0
	case ps.count < 5:
		sorted := slices.Clone(ps.q[:ps.count])
		slices.Sort(sorted)
		return sorted[int(float64(ps.count-1)*ps.p)]
	default:
		return ps.q[2]
	}
}
