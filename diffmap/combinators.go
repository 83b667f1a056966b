package diffmap

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SquaredNormMap is x ↦ ‖x − x0‖².
type SquaredNormMap struct {
	x0 *mat.VecDense
}

// SquaredNorm returns the squared distance to x0.
func SquaredNorm(x0 mat.Vector) *SquaredNormMap {
	return &SquaredNormMap{x0: mat.VecDenseCopyOf(x0)}
}

// InputDimension returns the length of x0.
func (f *SquaredNormMap) InputDimension() int { return f.x0.Len() }

// OutputDimension is always 1.
func (f *SquaredNormMap) OutputDimension() int { return 1 }

func (f *SquaredNormMap) delta(x mat.Vector) *mat.VecDense {
	d := mat.NewVecDense(f.x0.Len(), nil)
	d.SubVec(x, f.x0)
	return d
}

// Forward returns ‖x − x0‖².
func (f *SquaredNormMap) Forward(x mat.Vector) *mat.VecDense {
	d := f.delta(x)
	return mat.NewVecDense(1, []float64{mat.Dot(d, d)})
}

// Jacobian returns the row vector 2(x − x0)ᵀ.
func (f *SquaredNormMap) Jacobian(x mat.Vector) *mat.Dense {
	d := f.delta(x)
	d.ScaleVec(2, d)
	return mat.NewDense(1, d.Len(), d.RawVector().Data)
}

// Hessian returns 2I.
func (f *SquaredNormMap) Hessian(mat.Vector) *mat.SymDense {
	n := f.x0.Len()
	h := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		h.SetSym(i, i, 2)
	}
	return h
}

// ScaledMap is x ↦ α·f(x).
type ScaledMap struct {
	f     Map
	alpha float64
}

// Scale returns α·f.
func Scale(f Map, alpha float64) *ScaledMap {
	return &ScaledMap{f: f, alpha: alpha}
}

// InputDimension returns the input dimension of the wrapped map.
func (s *ScaledMap) InputDimension() int { return s.f.InputDimension() }

// OutputDimension returns the output dimension of the wrapped map.
func (s *ScaledMap) OutputDimension() int { return s.f.OutputDimension() }

// Forward returns α·f(x).
func (s *ScaledMap) Forward(x mat.Vector) *mat.VecDense {
	y := s.f.Forward(x)
	y.ScaleVec(s.alpha, y)
	return y
}

// Jacobian returns α·J_f(x).
func (s *ScaledMap) Jacobian(x mat.Vector) *mat.Dense {
	j := s.f.Jacobian(x)
	j.Scale(s.alpha, j)
	return j
}

// Hessian returns α·H_f(x), or nil when the wrapped map has none.
func (s *ScaledMap) Hessian(x mat.Vector) *mat.SymDense {
	h := s.f.Hessian(x)
	if h == nil {
		return nil
	}
	h.ScaleSym(s.alpha, h)
	return h
}

// SumMap is x ↦ Σ f_i(x).
type SumMap struct {
	maps []Map
}

// Sum adds maps sharing the same input and output dimensions.
func Sum(maps ...Map) (*SumMap, error) {
	if len(maps) == 0 {
		return nil, errors.New("sum of no maps")
	}
	n, m := maps[0].InputDimension(), maps[0].OutputDimension()
	for _, f := range maps[1:] {
		if err := CheckDimensions(f, n, m); err != nil {
			return nil, errors.Wrap(err, "summand")
		}
	}
	return &SumMap{maps: append([]Map(nil), maps...)}, nil
}

// InputDimension returns the shared input dimension.
func (s *SumMap) InputDimension() int { return s.maps[0].InputDimension() }

// OutputDimension returns the shared output dimension.
func (s *SumMap) OutputDimension() int { return s.maps[0].OutputDimension() }

// Forward returns the sum of the terms.
func (s *SumMap) Forward(x mat.Vector) *mat.VecDense {
	y := s.maps[0].Forward(x)
	for _, f := range s.maps[1:] {
		y.AddVec(y, f.Forward(x))
	}
	return y
}

// Jacobian returns the sum of the terms' jacobians.
func (s *SumMap) Jacobian(x mat.Vector) *mat.Dense {
	j := s.maps[0].Jacobian(x)
	for _, f := range s.maps[1:] {
		j.Add(j, f.Jacobian(x))
	}
	return j
}

// Hessian returns the sum of the terms' hessians, or nil if any term has none.
func (s *SumMap) Hessian(x mat.Vector) *mat.SymDense {
	h := s.maps[0].Hessian(x)
	if h == nil {
		return nil
	}
	for _, f := range s.maps[1:] {
		hf := f.Hessian(x)
		if hf == nil {
			return nil
		}
		h.AddSym(h, hf)
	}
	return h
}
