package costterms

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/trajopt/diffmap"
	"go.viam.com/trajopt/sdf"
)

func TestFiniteDifferencesVelocity(t *testing.T) {
	v, err := NewFiniteDifferencesVelocity(1, 0.1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v.InputDimension(), test.ShouldEqual, 2)
	test.That(t, v.OutputDimension(), test.ShouldEqual, 1)

	// No dependence on a common offset.
	test.That(t, diffmap.Value(v, mat.NewVecDense(2, []float64{0, 0})), test.ShouldEqual, 0)
	test.That(t, diffmap.Value(v, mat.NewVecDense(2, []float64{5, 5})), test.ShouldEqual, 0)
	test.That(t, diffmap.Value(v, mat.NewVecDense(2, []float64{1, 2})), test.ShouldAlmostEqual, 10)

	rnd := rand.New(rand.NewSource(1))
	v2, err := NewFiniteDifferencesVelocity(2, 0.1)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 10; i++ {
		x := diffmap.RandomPoint(rnd, 4, -1, 1)
		test.That(t, diffmap.CheckJacobian(v2, x, 1e-6), test.ShouldBeNil)
	}

	_, err = NewFiniteDifferencesVelocity(0, 0.1)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewFiniteDifferencesVelocity(2, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFiniteDifferencesAcceleration(t *testing.T) {
	a, err := NewFiniteDifferencesAcceleration(2, 0.5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a.InputDimension(), test.ShouldEqual, 6)
	test.That(t, a.OutputDimension(), test.ShouldEqual, 2)

	// (x_{t+1} + x_{t-1} - 2x_t)/dt².
	y := a.Forward(mat.NewVecDense(6, []float64{0, 1, 1, 1, 3, 1}))
	test.That(t, y.AtVec(0), test.ShouldAlmostEqual, 4)
	test.That(t, y.AtVec(1), test.ShouldAlmostEqual, 0)

	// Shifted and uniformly moving cliques have no acceleration.
	y = a.Forward(mat.NewVecDense(6, []float64{7, 7, 8, 6, 9, 5}))
	test.That(t, y.AtVec(0), test.ShouldAlmostEqual, 0)
	test.That(t, y.AtVec(1), test.ShouldAlmostEqual, 0)
}

func TestSquaredNormDerivatives(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	vel, err := NewSquaredNormVelocity(2, 0.5)
	test.That(t, err, test.ShouldBeNil)
	acc, err := NewSquaredNormAcceleration(2, 0.5)
	test.That(t, err, test.ShouldBeNil)
	for _, f := range []diffmap.Map{vel, acc} {
		test.That(t, f.OutputDimension(), test.ShouldEqual, 1)
		for i := 0; i < 20; i++ {
			x := diffmap.RandomPoint(rnd, f.InputDimension(), -1, 1)
			test.That(t, diffmap.CheckJacobian(f, x, 1e-6), test.ShouldBeNil)
			test.That(t, diffmap.CheckHessian(f, x, 1e-2), test.ShouldBeNil)
		}
	}

	// The cached hessian is not shared with callers.
	h := vel.Hessian(nil)
	h.SetSym(0, 0, -1)
	test.That(t, vel.Hessian(nil).At(0, 0), test.ShouldAlmostEqual, 8)
}

func TestSquaredNormVelocityConstantSpeed(t *testing.T) {
	vel, err := NewSquaredNormVelocity(2, 0.1)
	test.That(t, err, test.ShouldBeNil)
	// Waypoints p_k = (0.1k, -0.2k) give the same cost on every consecutive pair.
	var values []float64
	for k := 0; k < 10; k++ {
		clique := mat.NewVecDense(4, []float64{0.1 * float64(k), -0.2 * float64(k), 0.1 * float64(k+1), -0.2 * float64(k+1)})
		values = append(values, diffmap.Value(vel, clique))
	}
	for _, v := range values {
		test.That(t, v, test.ShouldAlmostEqual, values[0], 1e-10)
	}
	test.That(t, values[0], test.ShouldAlmostEqual, 5, 1e-10)
}

func TestBoundBarrier(t *testing.T) {
	lower := mat.NewVecDense(2, []float64{-1, 0})
	upper := mat.NewVecDense(2, []float64{1, 2})
	b, err := NewBoundBarrier(lower, upper, WithBarrierScale(0.5))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.InputDimension(), test.ShouldEqual, 2)

	center := mat.NewVecDense(2, []float64{0, 1})
	test.That(t, diffmap.Value(b, center), test.ShouldAlmostEqual, 0)
	test.That(t, mat.Norm(b.Jacobian(center), 2), test.ShouldAlmostEqual, 0)

	rnd := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		x := mat.NewVecDense(2, []float64{-0.9 + 1.8*rnd.Float64(), 0.1 + 1.8*rnd.Float64()})
		test.That(t, b.Feasible(x), test.ShouldBeTrue)
		test.That(t, diffmap.CheckJacobian(b, x, 1e-6), test.ShouldBeNil)
		test.That(t, diffmap.CheckHessian(b, x, 1e-2), test.ShouldBeNil)
	}

	outside := mat.NewVecDense(2, []float64{0, 2.5})
	test.That(t, b.Feasible(outside), test.ShouldBeFalse)
	test.That(t, math.IsInf(diffmap.Value(b, outside), 1), test.ShouldBeTrue)
	test.That(t, mat.Norm(b.Jacobian(outside), 2), test.ShouldEqual, 0)
	test.That(t, mat.Norm(b.Hessian(outside), 2), test.ShouldEqual, 0)

	// Within the margin of a bound counts as outside.
	withMargin, err := NewBoundBarrier(lower, upper, WithBarrierMargin(0.2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.IsInf(diffmap.Value(withMargin, mat.NewVecDense(2, []float64{0.9, 1})), 1), test.ShouldBeTrue)

	_, err = NewBoundBarrier(lower, mat.NewVecDense(3, nil))
	test.That(t, err, test.ShouldWrap, diffmap.ErrDimensionMismatch)
}

func testWorkspace(t *testing.T) diffmap.Map {
	t.Helper()
	a, err := sdf.NewCircle(r2.Point{X: 0.1, Y: -0.1}, 0.2)
	test.That(t, err, test.ShouldBeNil)
	b, err := sdf.NewCircle(r2.Point{X: -2, Y: 2}, 0.1)
	test.That(t, err, test.ShouldBeNil)
	w, err := sdf.NewWorkspace(a, b)
	test.That(t, err, test.ShouldBeNil)
	return w
}

func TestSimplePotential2D(t *testing.T) {
	w := testWorkspace(t)
	p, err := NewSimplePotential2D(w)
	test.That(t, err, test.ShouldBeNil)

	// On an obstacle boundary the potential is ρ.
	test.That(t, diffmap.Value(p, mat.NewVecDense(2, []float64{0.3, -0.1})), test.ShouldAlmostEqual, 100, 1e-9)

	rnd := rand.New(rand.NewSource(4))
	for i := 0; i < 50; i++ {
		x := diffmap.RandomPoint(rnd, 2, 0.5, 1)
		test.That(t, diffmap.Value(p, x), test.ShouldBeGreaterThan, 0)
		test.That(t, diffmap.CheckJacobian(p, x, 1e-6), test.ShouldBeNil)
		test.That(t, diffmap.CheckHessian(p, x, 1e-2), test.ShouldBeNil)
	}

	_, err = NewSimplePotential2D(diffmap.Identity(2))
	test.That(t, err, test.ShouldWrap, diffmap.ErrDimensionMismatch)
}

func TestCostGridPotential2D(t *testing.T) {
	w := testWorkspace(t)
	p, err := NewCostGridPotential2D(w, 5, 0.1, 1)
	test.That(t, err, test.ShouldBeNil)

	// At clearance equal to the margin the value is ρ + offset.
	test.That(t, diffmap.Value(p, mat.NewVecDense(2, []float64{0.4, -0.1})), test.ShouldAlmostEqual, 101, 1e-9)

	rnd := rand.New(rand.NewSource(5))
	for i := 0; i < 50; i++ {
		x := diffmap.RandomPoint(rnd, 2, 0.5, 1)
		test.That(t, diffmap.Value(p, x), test.ShouldBeGreaterThan, 1)
		test.That(t, diffmap.CheckJacobian(p, x, 1e-6), test.ShouldBeNil)
		test.That(t, diffmap.CheckHessian(p, x, 1e-2), test.ShouldBeNil)
	}
}

func TestObstaclePotential2D(t *testing.T) {
	w := testWorkspace(t)
	p, err := NewObstaclePotential2D(w)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.OutputDimension(), test.ShouldEqual, 3)

	rnd := rand.New(rand.NewSource(6))
	for i := 0; i < 50; i++ {
		x := diffmap.RandomPoint(rnd, 2, 0.5, 1)
		y := p.Forward(x)
		test.That(t, y.AtVec(1), test.ShouldEqual, x.AtVec(0))
		test.That(t, y.AtVec(2), test.ShouldEqual, x.AtVec(1))
		test.That(t, diffmap.CheckJacobian(p, x, 1e-6), test.ShouldBeNil)

		// The hessian is the Gauss-Newton matrix of the jacobian.
		j := p.Jacobian(x)
		var jtj mat.Dense
		jtj.Mul(j.T(), j)
		test.That(t, mat.EqualApprox(p.Hessian(x), &jtj, 1e-12), test.ShouldBeTrue)
	}
}
