package costterms

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/trajopt/diffmap"
)

const (
	defaultBarrierScale  = 1.0
	defaultBarrierMargin = 1e-10
)

// BoundBarrier is the log-barrier Σ −α·ln(x_i − lower_i) − α·ln(upper_i − x_i) keeping each
// coordinate strictly inside [lower_i + margin, upper_i − margin].
//
// Outside that box the barrier evaluates to +Inf and both derivatives are zero, which lets a line
// search reject the step instead of following an undefined gradient.
type BoundBarrier struct {
	lower  *mat.VecDense
	upper  *mat.VecDense
	alpha  float64
	margin float64
}

// BarrierOption configures a BoundBarrier.
type BarrierOption func(*BoundBarrier)

// WithBarrierScale sets the barrier weight α.
func WithBarrierScale(alpha float64) BarrierOption {
	return func(b *BoundBarrier) { b.alpha = alpha }
}

// WithBarrierMargin sets the distance to the bounds at which the barrier becomes infeasible.
func WithBarrierMargin(margin float64) BarrierOption {
	return func(b *BoundBarrier) { b.margin = margin }
}

// NewBoundBarrier returns a barrier for the box [lower, upper].
func NewBoundBarrier(lower, upper mat.Vector, opts ...BarrierOption) (*BoundBarrier, error) {
	if lower.Len() != upper.Len() {
		return nil, diffmap.NewDimensionMismatchError("barrier upper bound", lower.Len(), upper.Len())
	}
	b := &BoundBarrier{
		lower:  mat.VecDenseCopyOf(lower),
		upper:  mat.VecDenseCopyOf(upper),
		alpha:  defaultBarrierScale,
		margin: defaultBarrierMargin,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// InputDimension returns the number of bounded coordinates.
func (b *BoundBarrier) InputDimension() int { return b.lower.Len() }

// OutputDimension is always 1.
func (b *BoundBarrier) OutputDimension() int { return 1 }

// Feasible reports whether x lies strictly inside the shrunk box.
func (b *BoundBarrier) Feasible(x mat.Vector) bool {
	for i := 0; i < b.lower.Len(); i++ {
		if x.AtVec(i)-b.lower.AtVec(i) < b.margin || b.upper.AtVec(i)-x.AtVec(i) < b.margin {
			return false
		}
	}
	return true
}

// Forward returns the barrier value, +Inf when x is infeasible.
func (b *BoundBarrier) Forward(x mat.Vector) *mat.VecDense {
	if !b.Feasible(x) {
		return mat.NewVecDense(1, []float64{math.Inf(1)})
	}
	var v float64
	for i := 0; i < b.lower.Len(); i++ {
		l := x.AtVec(i) - b.lower.AtVec(i)
		u := b.upper.AtVec(i) - x.AtVec(i)
		v -= b.alpha*math.Log(l) + b.alpha*math.Log(u)
	}
	return mat.NewVecDense(1, []float64{v})
}

// Jacobian returns the row −α/l + α/u, zero when x is infeasible.
func (b *BoundBarrier) Jacobian(x mat.Vector) *mat.Dense {
	n := b.lower.Len()
	j := mat.NewDense(1, n, nil)
	if !b.Feasible(x) {
		return j
	}
	for i := 0; i < n; i++ {
		l := x.AtVec(i) - b.lower.AtVec(i)
		u := b.upper.AtVec(i) - x.AtVec(i)
		j.Set(0, i, -b.alpha/l+b.alpha/u)
	}
	return j
}

// Hessian returns the diagonal α/l² + α/u², zero when x is infeasible.
func (b *BoundBarrier) Hessian(x mat.Vector) *mat.SymDense {
	n := b.lower.Len()
	h := mat.NewSymDense(n, nil)
	if !b.Feasible(x) {
		return h
	}
	for i := 0; i < n; i++ {
		l := x.AtVec(i) - b.lower.AtVec(i)
		u := b.upper.AtVec(i) - x.AtVec(i)
		h.SetSym(i, i, b.alpha/(l*l)+b.alpha/(u*u))
	}
	return h
}
