package diffmap

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PullbackMap is the composition x ↦ outer(inner(x)). Nothing is cached between calls.
type PullbackMap struct {
	outer Map
	inner Map
}

// NewPullback composes outer after inner. It fails when the inner output does not feed the
// outer input.
func NewPullback(outer, inner Map) (*PullbackMap, error) {
	if outer.InputDimension() != inner.OutputDimension() {
		return nil, NewDimensionMismatchError("pullback outer input", inner.OutputDimension(), outer.InputDimension())
	}
	return &PullbackMap{outer: outer, inner: inner}, nil
}

// Compose chains maps right to left, so Compose(f, g, h)(x) = f(g(h(x))).
func Compose(maps ...Map) (Map, error) {
	if len(maps) == 0 {
		return nil, errors.New("compose of no maps")
	}
	composed := maps[len(maps)-1]
	for i := len(maps) - 2; i >= 0; i-- {
		pb, err := NewPullback(maps[i], composed)
		if err != nil {
			return nil, errors.Wrapf(err, "composing map %d", i)
		}
		composed = pb
	}
	return composed, nil
}

// Outer returns the outer map.
func (p *PullbackMap) Outer() Map { return p.outer }

// Inner returns the inner map.
func (p *PullbackMap) Inner() Map { return p.inner }

// InputDimension returns the input dimension of the inner map.
func (p *PullbackMap) InputDimension() int { return p.inner.InputDimension() }

// OutputDimension returns the output dimension of the outer map.
func (p *PullbackMap) OutputDimension() int { return p.outer.OutputDimension() }

// Forward returns outer(inner(x)).
func (p *PullbackMap) Forward(x mat.Vector) *mat.VecDense {
	return p.outer.Forward(p.inner.Forward(x))
}

// Jacobian applies the chain rule, J_outer(inner(x))·J_inner(x).
func (p *PullbackMap) Jacobian(x mat.Vector) *mat.Dense {
	y := p.inner.Forward(x)
	var j mat.Dense
	j.Mul(p.outer.Jacobian(y), p.inner.Jacobian(x))
	return &j
}

// Hessian returns J_innerᵀ·H_outer·J_inner. When the inner map is scalar valued the curvature
// term ∂outer·H_inner is added too. For any other non-linear inner map the second term is
// dropped, so the result is the Gauss-Newton part only; it is exact whenever inner is affine.
// Returns nil when the outer map is not scalar valued or has no hessian.
func (p *PullbackMap) Hessian(x mat.Vector) *mat.SymDense {
	if p.outer.OutputDimension() != 1 {
		return nil
	}
	y := p.inner.Forward(x)
	hOuter := p.outer.Hessian(y)
	if hOuter == nil {
		return nil
	}
	jInner := p.inner.Jacobian(x)

	var tmp, full mat.Dense
	tmp.Mul(hOuter, jInner)
	full.Mul(jInner.T(), &tmp)
	h := symmetrize(&full)

	if _, linear := p.inner.(Linear); linear || p.inner.OutputDimension() != 1 {
		return h
	}
	hInner := p.inner.Hessian(x)
	if hInner == nil {
		return h
	}
	df := p.outer.Jacobian(y).At(0, 0)
	hInner.ScaleSym(df, hInner)
	h.AddSym(h, hInner)
	return h
}
