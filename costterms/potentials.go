package costterms

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/trajopt/diffmap"
)

// Default shaping of the obstacle potentials.
const (
	SimplePotentialRho   = 100.0
	SimplePotentialAlpha = 10.0

	ObstaclePotentialRho   = 50.0
	ObstaclePotentialAlpha = 1e-3
)

func checkSDF(sdf diffmap.Map) error {
	return diffmap.CheckDimensions(sdf, 2, 1)
}

// SimplePotential2D is the scalar cost ρ·exp(−α·(sdf(x) − margin)) + offset over the plane. It is
// strictly positive and decays exponentially with clearance. The field is only read.
type SimplePotential2D struct {
	sdf    diffmap.Map
	rho    float64
	alpha  float64
	margin float64
	offset float64
}

// NewSimplePotential2D uses ρ=100, α=10 and no margin.
func NewSimplePotential2D(sdf diffmap.Map) (*SimplePotential2D, error) {
	if err := checkSDF(sdf); err != nil {
		return nil, err
	}
	return &SimplePotential2D{sdf: sdf, rho: SimplePotentialRho, alpha: SimplePotentialAlpha}, nil
}

// NewCostGridPotential2D is a simple potential with an explicit decay rate, a clearance margin
// subtracted before the exponential and a constant floor added to the value.
func NewCostGridPotential2D(sdf diffmap.Map, alpha, margin, offset float64) (*SimplePotential2D, error) {
	p, err := NewSimplePotential2D(sdf)
	if err != nil {
		return nil, err
	}
	p.alpha = alpha
	p.margin = margin
	p.offset = offset
	return p, nil
}

// InputDimension is always 2.
func (p *SimplePotential2D) InputDimension() int { return 2 }

// OutputDimension is always 1.
func (p *SimplePotential2D) OutputDimension() int { return 1 }

func (p *SimplePotential2D) activation(x mat.Vector) float64 {
	return p.rho * math.Exp(-p.alpha*(diffmap.Value(p.sdf, x)-p.margin))
}

// Forward returns the potential at x.
func (p *SimplePotential2D) Forward(x mat.Vector) *mat.VecDense {
	return mat.NewVecDense(1, []float64{p.activation(x) + p.offset})
}

// Jacobian returns −α·ρ(x)·J_sdf.
func (p *SimplePotential2D) Jacobian(x mat.Vector) *mat.Dense {
	j := p.sdf.Jacobian(x)
	j.Scale(-p.alpha*p.activation(x), j)
	return j
}

// Hessian returns ρ(x)·(α²·J_sdfᵀJ_sdf − α·H_sdf).
func (p *SimplePotential2D) Hessian(x mat.Vector) *mat.SymDense {
	rho := p.activation(x)
	j := p.sdf.Jacobian(x)
	var h mat.SymDense
	h.SymOuterK(p.alpha*p.alpha*rho, j.T())
	if hSDF := p.sdf.Hessian(x); hSDF != nil {
		hSDF.ScaleSym(-p.alpha*rho, hSDF)
		h.AddSym(&h, hSDF)
	}
	return &h
}

// ObstaclePotential2D maps x to [ρ·exp(−α·sdf(x)), x0, x1]: the penalty stacked on top of the raw
// position.
type ObstaclePotential2D struct {
	sdf   diffmap.Map
	rho   float64
	alpha float64
}

// NewObstaclePotential2D uses ρ=50 and α=1e-3.
func NewObstaclePotential2D(sdf diffmap.Map) (*ObstaclePotential2D, error) {
	if err := checkSDF(sdf); err != nil {
		return nil, err
	}
	return &ObstaclePotential2D{sdf: sdf, rho: ObstaclePotentialRho, alpha: ObstaclePotentialAlpha}, nil
}

// InputDimension is always 2.
func (p *ObstaclePotential2D) InputDimension() int { return 2 }

// OutputDimension is always 3.
func (p *ObstaclePotential2D) OutputDimension() int { return 3 }

// Forward returns the stacked penalty and position.
func (p *ObstaclePotential2D) Forward(x mat.Vector) *mat.VecDense {
	rho := math.Exp(-p.alpha * diffmap.Value(p.sdf, x))
	return mat.NewVecDense(3, []float64{p.rho * rho, x.AtVec(0), x.AtVec(1)})
}

// Jacobian returns the 3×2 matrix with −α·ρ·exp(−α·sdf)·J_sdf on top of the identity.
func (p *ObstaclePotential2D) Jacobian(x mat.Vector) *mat.Dense {
	rho := math.Exp(-p.alpha * diffmap.Value(p.sdf, x))
	jSDF := p.sdf.Jacobian(x)
	scale := -p.alpha * p.rho * rho
	return mat.NewDense(3, 2, []float64{
		scale * jSDF.At(0, 0), scale * jSDF.At(0, 1),
		1, 0,
		0, 1,
	})
}

// Hessian returns the Gauss-Newton matrix JᵀJ built from the jacobian. This is an approximation:
// the map is vector valued and no second derivative of the field enters it.
func (p *ObstaclePotential2D) Hessian(x mat.Vector) *mat.SymDense {
	var h mat.SymDense
	h.SymOuterK(1, p.Jacobian(x).T())
	return &h
}
