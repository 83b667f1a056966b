// Package costterms contains the local cost functions evaluated on trajectory cliques:
// finite-difference smoothness terms, joint-bound barriers and obstacle potentials.
package costterms

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/trajopt/diffmap"
)

func checkDimAndStep(dim int, dt float64) error {
	if dim <= 0 {
		return errors.Errorf("configuration dimension must be positive, got %d", dim)
	}
	if dt <= 0 {
		return errors.Errorf("time step must be positive, got %g", dt)
	}
	return nil
}

// blockRow writes coef·I_dim into a at column block k.
func blockRow(a *mat.Dense, dim, k int, coef float64) {
	for i := 0; i < dim; i++ {
		a.Set(i, k*dim+i, coef)
	}
}

// NewFiniteDifferencesVelocity returns the linear map [x_t; x_{t+1}] ↦ (x_{t+1} − x_t)/dt.
func NewFiniteDifferencesVelocity(dim int, dt float64) (*diffmap.AffineMap, error) {
	if err := checkDimAndStep(dim, dt); err != nil {
		return nil, err
	}
	a := mat.NewDense(dim, 2*dim, nil)
	blockRow(a, dim, 0, -1/dt)
	blockRow(a, dim, 1, 1/dt)
	return diffmap.NewLinearMap(a), nil
}

// NewFiniteDifferencesAcceleration returns the linear map
// [x_{t−1}; x_t; x_{t+1}] ↦ (x_{t+1} + x_{t−1} − 2x_t)/dt².
func NewFiniteDifferencesAcceleration(dim int, dt float64) (*diffmap.AffineMap, error) {
	if err := checkDimAndStep(dim, dt); err != nil {
		return nil, err
	}
	dt2 := dt * dt
	a := mat.NewDense(dim, 3*dim, nil)
	blockRow(a, dim, 0, 1/dt2)
	blockRow(a, dim, 1, -2/dt2)
	blockRow(a, dim, 2, 1/dt2)
	return diffmap.NewLinearMap(a), nil
}
