// Package diffeo implements invertible planar coordinate maps. They are differentiable maps from
// R² to R² that also expose their inverse, so a field defined in one chart can be pulled back to
// the other.
package diffeo

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/trajopt/diffmap"
)

// Diffeomorphism is a differentiable map with a differentiable inverse.
type Diffeomorphism interface {
	diffmap.Map
	Inverse(y mat.Vector) *mat.VecDense
}

var (
	_ Diffeomorphism = (*PolarCoordinateSystem)(nil)
	_ Diffeomorphism = (*AnalyticCircle)(nil)
)

func point(x mat.Vector) r2.Point {
	return r2.Point{X: x.AtVec(0), Y: x.AtVec(1)}
}

func vec(p r2.Point) *mat.VecDense {
	return mat.NewVecDense(2, []float64{p.X, p.Y})
}

// PolarCoordinateSystem maps x to (ρ, θ), its distance and bearing from Origin. It is undefined at
// the origin itself.
type PolarCoordinateSystem struct {
	Origin r2.Point
}

// NewPolarCoordinateSystem centers the chart at origin.
func NewPolarCoordinateSystem(origin r2.Point) *PolarCoordinateSystem {
	return &PolarCoordinateSystem{Origin: origin}
}

// InputDimension is always 2.
func (p *PolarCoordinateSystem) InputDimension() int { return 2 }

// OutputDimension is always 2.
func (p *PolarCoordinateSystem) OutputDimension() int { return 2 }

// Forward returns (ρ, θ) with θ in (−π, π].
func (p *PolarCoordinateSystem) Forward(x mat.Vector) *mat.VecDense {
	u := point(x).Sub(p.Origin)
	return mat.NewVecDense(2, []float64{u.Norm(), math.Atan2(u.Y, u.X)})
}

// Jacobian returns ∂(ρ, θ)/∂x.
func (p *PolarCoordinateSystem) Jacobian(x mat.Vector) *mat.Dense {
	u := point(x).Sub(p.Origin)
	rho := u.Norm()
	rho2 := rho * rho
	return mat.NewDense(2, 2, []float64{
		u.X / rho, u.Y / rho,
		-u.Y / rho2, u.X / rho2,
	})
}

// Hessian is undefined for a vector valued map.
func (p *PolarCoordinateSystem) Hessian(mat.Vector) *mat.SymDense { return nil }

// Inverse returns Origin + ρ·(cos θ, sin θ).
func (p *PolarCoordinateSystem) Inverse(y mat.Vector) *mat.VecDense {
	rho, theta := y.AtVec(0), y.AtVec(1)
	return vec(p.Origin.Add(r2.Point{X: math.Cos(theta), Y: math.Sin(theta)}.Mul(rho)))
}

// RadialWarp is the monotone map β(d) = d + η·d/(d + γ) of the clearance d ≥ 0. It fixes 0 and
// pushes points near the boundary outwards by at most η.
type RadialWarp struct {
	Eta   float64
	Gamma float64
}

// Beta evaluates the warp.
func (w RadialWarp) Beta(d float64) float64 {
	return d + w.Eta*d/(d+w.Gamma)
}

// BetaDerivative returns β'(d).
func (w RadialWarp) BetaDerivative(d float64) float64 {
	s := d + w.Gamma
	return 1 + w.Eta*w.Gamma/(s*s)
}

// BetaInverse solves β(d) = y for d ≥ 0, the positive root of d² + (γ + η − y)·d − γ·y = 0.
// The root is picked in the form that avoids cancellation.
func (w RadialWarp) BetaInverse(y float64) float64 {
	a := w.Gamma + w.Eta - y
	disc := math.Sqrt(a*a + 4*w.Gamma*y)
	if a > 0 {
		return 2 * w.Gamma * y / (a + disc)
	}
	return (disc - a) / 2
}

// AnalyticCircle radially warps the plane outside a disc: a point at clearance d from the circle
// is moved to clearance β(d) along the same ray. The circle itself is left in place.
type AnalyticCircle struct {
	Center r2.Point
	Radius float64
	Warp   RadialWarp
}

// NewAnalyticCircle validates the disc and the warp parameters.
func NewAnalyticCircle(center r2.Point, radius float64, warp RadialWarp) (*AnalyticCircle, error) {
	if radius <= 0 {
		return nil, errors.Errorf("circle radius must be positive, got %g", radius)
	}
	if warp.Eta < 0 || warp.Gamma <= 0 {
		return nil, errors.Errorf("invalid radial warp eta=%g gamma=%g", warp.Eta, warp.Gamma)
	}
	return &AnalyticCircle{Center: center, Radius: radius, Warp: warp}, nil
}

// InputDimension is always 2.
func (c *AnalyticCircle) InputDimension() int { return 2 }

// OutputDimension is always 2.
func (c *AnalyticCircle) OutputDimension() int { return 2 }

// scale returns h(ρ) = (r + β(ρ − r))/ρ, the factor applied to x − center.
func (c *AnalyticCircle) scale(rho float64) float64 {
	return (c.Radius + c.Warp.Beta(rho-c.Radius)) / rho
}

// Forward moves x along its ray from the center.
func (c *AnalyticCircle) Forward(x mat.Vector) *mat.VecDense {
	u := point(x).Sub(c.Center)
	return vec(c.Center.Add(u.Mul(c.scale(u.Norm()))))
}

// Jacobian returns h·I + h'(ρ)/ρ·u·uᵀ.
func (c *AnalyticCircle) Jacobian(x mat.Vector) *mat.Dense {
	u := point(x).Sub(c.Center)
	rho := u.Norm()
	h := c.scale(rho)
	dh := (c.Warp.BetaDerivative(rho-c.Radius)*rho - (c.Radius + c.Warp.Beta(rho-c.Radius))) / (rho * rho)
	k := dh / rho
	return mat.NewDense(2, 2, []float64{
		h + k*u.X*u.X, k * u.X * u.Y,
		k * u.X * u.Y, h + k*u.Y*u.Y,
	})
}

// Hessian is undefined for a vector valued map.
func (c *AnalyticCircle) Hessian(mat.Vector) *mat.SymDense { return nil }

// Inverse moves y back along its ray so that its clearance goes from β(d) to d.
func (c *AnalyticCircle) Inverse(y mat.Vector) *mat.VecDense {
	v := point(y).Sub(c.Center)
	s := v.Norm()
	rho := c.Radius + c.Warp.BetaInverse(s-c.Radius)
	return vec(c.Center.Add(v.Mul(rho / s)))
}
