package cliques

import (
	"math/rand"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/trajopt/costterms"
	"go.viam.com/trajopt/diffmap"
)

func TestAllCliques(t *testing.T) {
	net, err := NewFunctionNetwork(10, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, net.NbCliques(), test.ShouldEqual, 8)
	test.That(t, net.CliqueDimension(), test.ShouldEqual, 3)

	data := make([]float64, 10)
	for i := range data {
		data[i] = float64(i)
	}
	x := mat.NewVecDense(10, data)

	// The sequence is re-iterable.
	for pass := 0; pass < 2; pass++ {
		count := 0
		for i, c := range net.AllCliques(x) {
			test.That(t, i, test.ShouldEqual, count)
			test.That(t, c.RawVector().Data, test.ShouldResemble, data[i:i+3])
			count++
		}
		test.That(t, count, test.ShouldEqual, 8)
	}
	test.That(t, net.Cliques(x), test.ShouldHaveLength, 8)

	// Early exit.
	seen := 0
	for range net.AllCliques(x) {
		seen++
		if seen == 3 {
			break
		}
	}
	test.That(t, seen, test.ShouldEqual, 3)
}

func TestNewFunctionNetworkErrors(t *testing.T) {
	_, err := NewFunctionNetwork(10, 3)
	test.That(t, err, test.ShouldWrap, diffmap.ErrDimensionMismatch)
	_, err = NewFunctionNetwork(4, 2)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewFunctionNetwork(4, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRegistration(t *testing.T) {
	net, err := NewFunctionNetwork(12, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, net.NbCliques(), test.ShouldEqual, 4)

	vel, err := costterms.NewSquaredNormVelocity(2, 0.1)
	test.That(t, err, test.ShouldBeNil)
	// A velocity term reads two elements, not a whole clique.
	test.That(t, net.RegisterFunctionForAllCliques(vel), test.ShouldWrap, diffmap.ErrDimensionMismatch)
	test.That(t, net.RegisterFunctionForClique(0, vel), test.ShouldWrap, diffmap.ErrDimensionMismatch)

	pb, err := diffmap.NewPullback(vel, LeftOfCliqueMap(2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, net.RegisterFunctionForAllCliques(pb), test.ShouldBeNil)
	test.That(t, net.RegisterFunctionForLastClique(pb), test.ShouldBeNil)
	test.That(t, net.RegisterFunctionForClique(4, pb), test.ShouldNotBeNil)
	test.That(t, net.RegisterFunctionForClique(-1, pb), test.ShouldNotBeNil)
	test.That(t, net.Functions(0), test.ShouldHaveLength, 1)
	test.That(t, net.Functions(3), test.ShouldHaveLength, 2)
}

func TestSelectors(t *testing.T) {
	c := mat.NewVecDense(6, []float64{0, 1, 2, 3, 4, 5})
	for _, tc := range []struct {
		name     string
		f        *diffmap.AffineMap
		expected []float64
	}{
		{"center", CenterOfCliqueMap(2), []float64{2, 3}},
		{"leftmost", LeftMostOfCliqueMap(2), []float64{0, 1}},
		{"rightmost", RightMostOfCliqueMap(2), []float64{4, 5}},
		{"left", LeftOfCliqueMap(2), []float64{0, 1, 2, 3}},
		{"right", RightOfCliqueMap(2), []float64{2, 3, 4, 5}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.That(t, tc.f.Forward(c).RawVector().Data, test.ShouldResemble, tc.expected)
		})
	}
}

// smoothnessNetwork registers velocity and acceleration terms, plus a curved term on the center
// of each clique so the hessian depends on x.
func smoothnessNetwork(t *testing.T, nbElements int, opts ...Option) *FunctionNetwork {
	t.Helper()
	const n = 2
	net, err := NewFunctionNetwork(nbElements*n, n, opts...)
	test.That(t, err, test.ShouldBeNil)

	vel, err := costterms.NewSquaredNormVelocity(n, 0.5)
	test.That(t, err, test.ShouldBeNil)
	acc, err := costterms.NewSquaredNormAcceleration(n, 0.5)
	test.That(t, err, test.ShouldBeNil)
	lower := mat.NewVecDense(n, []float64{-10, -10})
	upper := mat.NewVecDense(n, []float64{10, 10})
	barrier, err := costterms.NewBoundBarrier(lower, upper)
	test.That(t, err, test.ShouldBeNil)

	velOnClique, err := diffmap.NewPullback(vel, LeftOfCliqueMap(n))
	test.That(t, err, test.ShouldBeNil)
	velOnLast, err := diffmap.NewPullback(vel, RightOfCliqueMap(n))
	test.That(t, err, test.ShouldBeNil)
	barrierOnCenter, err := diffmap.NewPullback(barrier, CenterOfCliqueMap(n))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, net.RegisterFunctionForAllCliques(velOnClique), test.ShouldBeNil)
	test.That(t, net.RegisterFunctionForLastClique(velOnLast), test.ShouldBeNil)
	test.That(t, net.RegisterFunctionForAllCliques(acc), test.ShouldBeNil)
	test.That(t, net.RegisterFunctionForAllCliques(barrierOnCenter), test.ShouldBeNil)
	return net
}

func TestNetworkDerivatives(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	net := smoothnessNetwork(t, 7)
	for i := 0; i < 5; i++ {
		x := diffmap.RandomPoint(rnd, net.InputDimension(), -1, 1)

		var sum float64
		for k, c := range net.AllCliques(x) {
			sum += net.FunctionOnClique(k, c)
		}
		test.That(t, diffmap.Value(net, x), test.ShouldAlmostEqual, sum, 1e-9)

		test.That(t, diffmap.CheckJacobian(net, x, 1e-6), test.ShouldBeNil)
		test.That(t, diffmap.CheckHessian(net, x, 1e-2), test.ShouldBeNil)

		// Banded and dense hessians agree, and nothing lies outside the band.
		band := net.HessianBand(x)
		dense := net.Hessian(x)
		_, k := band.SymBand()
		test.That(t, k, test.ShouldEqual, 5)
		for r := 0; r < net.InputDimension(); r++ {
			for c := 0; c < net.InputDimension(); c++ {
				test.That(t, dense.At(r, c), test.ShouldEqual, band.At(r, c))
			}
		}

		value, grad, hess := net.Evaluate(x)
		test.That(t, value, test.ShouldAlmostEqual, sum, 1e-9)
		test.That(t, mat.EqualApprox(grad, net.Gradient(x), 1e-12), test.ShouldBeTrue)
		test.That(t, mat.EqualApprox(hess, band, 1e-12), test.ShouldBeTrue)
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	serial := smoothnessNetwork(t, 23)
	for _, workers := range []int{2, 3, 8, 64} {
		parallel := smoothnessNetwork(t, 23, WithParallelism(workers))
		x := diffmap.RandomPoint(rnd, serial.InputDimension(), -1, 1)

		sv, sg, sh := serial.Evaluate(x)
		pv, pg, ph := parallel.Evaluate(x)
		test.That(t, pv, test.ShouldAlmostEqual, sv, 1e-9)
		test.That(t, mat.EqualApprox(pg, sg, 1e-9), test.ShouldBeTrue)
		test.That(t, mat.EqualApprox(ph, sh, 1e-9), test.ShouldBeTrue)
	}
}
