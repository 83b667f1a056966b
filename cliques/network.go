// Package cliques assembles an objective over a whole trajectory from local functions evaluated
// on overlapping windows of consecutive waypoints.
//
// A network over N elements of dimension n has N−2 cliques; clique t is the concatenation of
// elements t, t+1 and t+2. Local gradients and hessians are scattered additively at the clique's
// offset, so the global hessian is banded with bandwidth 3n−1.
package cliques

import (
	"iter"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/trajopt/diffmap"
)

// CliqueWidth is the number of consecutive elements in a clique.
const CliqueWidth = 3

// FunctionNetwork maps each clique index to the local scalar functions registered on it. The
// network is itself a scalar diffmap.Map of the full input vector.
type FunctionNetwork struct {
	inputDimension int
	elementDim     int
	cliqueDim      int
	nbCliques      int
	functions      [][]diffmap.Map
	workers        int
}

// Option configures a FunctionNetwork.
type Option func(*FunctionNetwork)

// WithParallelism evaluates cliques on up to workers goroutines. Each goroutine accumulates into
// its own buffers which are summed once all are done, so the result does not depend on the
// number of workers beyond floating point reassociation.
func WithParallelism(workers int) Option {
	return func(net *FunctionNetwork) {
		if workers > 1 {
			net.workers = workers
		}
	}
}

// NewFunctionNetwork returns an empty network over an input of inputDimension values made of
// elements of dimension cliqueElementDim.
func NewFunctionNetwork(inputDimension, cliqueElementDim int, opts ...Option) (*FunctionNetwork, error) {
	if cliqueElementDim <= 0 {
		return nil, errors.Errorf("clique element dimension must be positive, got %d", cliqueElementDim)
	}
	if inputDimension%cliqueElementDim != 0 {
		return nil, errors.Wrapf(diffmap.ErrDimensionMismatch,
			"input dimension %d is not a multiple of the element dimension %d", inputDimension, cliqueElementDim)
	}
	nbElements := inputDimension / cliqueElementDim
	if nbElements < CliqueWidth {
		return nil, errors.Errorf("network needs at least %d elements, got %d", CliqueWidth, nbElements)
	}
	net := &FunctionNetwork{
		inputDimension: inputDimension,
		elementDim:     cliqueElementDim,
		cliqueDim:      CliqueWidth * cliqueElementDim,
		nbCliques:      nbElements - CliqueWidth + 1,
		workers:        1,
	}
	net.functions = make([][]diffmap.Map, net.nbCliques)
	for _, opt := range opts {
		opt(net)
	}
	return net, nil
}

// InputDimension returns the length of the full input vector.
func (net *FunctionNetwork) InputDimension() int { return net.inputDimension }

// OutputDimension is always 1.
func (net *FunctionNetwork) OutputDimension() int { return 1 }

// NbCliques returns the number of cliques.
func (net *FunctionNetwork) NbCliques() int { return net.nbCliques }

// CliqueDimension returns the input dimension every registered function must have.
func (net *FunctionNetwork) CliqueDimension() int { return net.cliqueDim }

// CliqueElementDimension returns the dimension of one element.
func (net *FunctionNetwork) CliqueElementDimension() int { return net.elementDim }

// Bandwidth returns the number of non-zero super-diagonals of the hessian.
func (net *FunctionNetwork) Bandwidth() int { return net.cliqueDim - 1 }

// RegisterFunctionForClique adds f to clique t.
func (net *FunctionNetwork) RegisterFunctionForClique(t int, f diffmap.Map) error {
	if t < 0 || t >= net.nbCliques {
		return errors.Errorf("clique %d not in [0, %d)", t, net.nbCliques)
	}
	if err := diffmap.CheckDimensions(f, net.cliqueDim, 1); err != nil {
		return errors.Wrapf(err, "registering function on clique %d", t)
	}
	net.functions[t] = append(net.functions[t], f)
	return nil
}

// RegisterFunctionForAllCliques adds f to every clique.
func (net *FunctionNetwork) RegisterFunctionForAllCliques(f diffmap.Map) error {
	if err := diffmap.CheckDimensions(f, net.cliqueDim, 1); err != nil {
		return errors.Wrap(err, "registering function on all cliques")
	}
	for t := range net.functions {
		net.functions[t] = append(net.functions[t], f)
	}
	return nil
}

// RegisterFunctionForLastClique adds f to the last clique.
func (net *FunctionNetwork) RegisterFunctionForLastClique(f diffmap.Map) error {
	return net.RegisterFunctionForClique(net.nbCliques-1, f)
}

// Functions returns the functions registered on clique t.
func (net *FunctionNetwork) Functions(t int) []diffmap.Map {
	return append([]diffmap.Map(nil), net.functions[t]...)
}

// cliqueOffset returns the index in the full vector of the first value of clique t.
func (net *FunctionNetwork) cliqueOffset(t int) int { return t * net.elementDim }

// CliqueValue returns a copy of clique t of x.
func (net *FunctionNetwork) CliqueValue(t int, x mat.Vector) *mat.VecDense {
	off := net.cliqueOffset(t)
	c := mat.NewVecDense(net.cliqueDim, nil)
	for i := 0; i < net.cliqueDim; i++ {
		c.SetVec(i, x.AtVec(off+i))
	}
	return c
}

// AllCliques yields every clique of x in order with its index. The sequence can be ranged over
// any number of times.
func (net *FunctionNetwork) AllCliques(x mat.Vector) iter.Seq2[int, *mat.VecDense] {
	return func(yield func(int, *mat.VecDense) bool) {
		for t := 0; t < net.nbCliques; t++ {
			if !yield(t, net.CliqueValue(t, x)) {
				return
			}
		}
	}
}

// Cliques returns every clique of x.
func (net *FunctionNetwork) Cliques(x mat.Vector) []*mat.VecDense {
	out := make([]*mat.VecDense, 0, net.nbCliques)
	for _, c := range net.AllCliques(x) {
		out = append(out, c)
	}
	return out
}

// FunctionOnClique sums the functions registered on clique t at the clique value xt.
func (net *FunctionNetwork) FunctionOnClique(t int, xt mat.Vector) float64 {
	var v float64
	for _, f := range net.functions[t] {
		v += diffmap.Value(f, xt)
	}
	return v
}

// Forward returns the sum of every registered function on its clique.
func (net *FunctionNetwork) Forward(x mat.Vector) *mat.VecDense {
	acc := net.evaluate(x, false, false)
	return mat.NewVecDense(1, []float64{acc.value})
}

// Gradient returns the gradient of the network at x.
func (net *FunctionNetwork) Gradient(x mat.Vector) *mat.VecDense {
	acc := net.evaluate(x, true, false)
	return mat.NewVecDense(net.inputDimension, acc.gradient)
}

// Jacobian returns the gradient as a row.
func (net *FunctionNetwork) Jacobian(x mat.Vector) *mat.Dense {
	acc := net.evaluate(x, true, false)
	return mat.NewDense(1, net.inputDimension, acc.gradient)
}

// HessianBand returns the hessian at x in banded storage.
func (net *FunctionNetwork) HessianBand(x mat.Vector) *mat.SymBandDense {
	return net.evaluate(x, false, true).hessian
}

// Hessian returns the hessian at x as a dense matrix.
func (net *FunctionNetwork) Hessian(x mat.Vector) *mat.SymDense {
	band := net.HessianBand(x)
	h := mat.NewSymDense(net.inputDimension, nil)
	band.DoNonZero(func(i, j int, v float64) {
		if i <= j {
			h.SetSym(i, j, v)
		}
	})
	return h
}

// Evaluate returns the value, gradient and banded hessian at x in one pass over the cliques.
func (net *FunctionNetwork) Evaluate(x mat.Vector) (float64, *mat.VecDense, *mat.SymBandDense) {
	acc := net.evaluate(x, true, true)
	return acc.value, mat.NewVecDense(net.inputDimension, acc.gradient), acc.hessian
}

// accumulator collects the contributions of a range of cliques.
type accumulator struct {
	value    float64
	gradient []float64
	hessian  *mat.SymBandDense
}

func (net *FunctionNetwork) newAccumulator(withGradient, withHessian bool) *accumulator {
	acc := &accumulator{}
	if withGradient {
		acc.gradient = make([]float64, net.inputDimension)
	}
	if withHessian {
		acc.hessian = mat.NewSymBandDense(net.inputDimension, net.Bandwidth(), nil)
	}
	return acc
}

// add scatters the contributions of cliques [from, to).
func (net *FunctionNetwork) add(acc *accumulator, x mat.Vector, from, to int) {
	for t := from; t < to; t++ {
		if len(net.functions[t]) == 0 {
			continue
		}
		xt := net.CliqueValue(t, x)
		off := net.cliqueOffset(t)
		for _, f := range net.functions[t] {
			acc.value += diffmap.Value(f, xt)
			if acc.gradient != nil {
				j := f.Jacobian(xt)
				for a := 0; a < net.cliqueDim; a++ {
					acc.gradient[off+a] += j.At(0, a)
				}
			}
			if acc.hessian != nil {
				h := f.Hessian(xt)
				if h == nil {
					continue
				}
				for a := 0; a < net.cliqueDim; a++ {
					for b := a; b < net.cliqueDim; b++ {
						acc.hessian.SetSymBand(off+a, off+b, acc.hessian.At(off+a, off+b)+h.At(a, b))
					}
				}
			}
		}
	}
}

// merge adds other into acc.
func (acc *accumulator) merge(other *accumulator) {
	acc.value += other.value
	for i, g := range other.gradient {
		acc.gradient[i] += g
	}
	if acc.hessian != nil {
		dst, src := acc.hessian.RawSymBand().Data, other.hessian.RawSymBand().Data
		for i, v := range src {
			dst[i] += v
		}
	}
}

func (net *FunctionNetwork) evaluate(x mat.Vector, withGradient, withHessian bool) *accumulator {
	if x.Len() != net.inputDimension {
		panic(diffmap.NewDimensionMismatchError("network input", net.inputDimension, x.Len()))
	}
	workers := min(net.workers, net.nbCliques)
	if workers <= 1 {
		acc := net.newAccumulator(withGradient, withHessian)
		net.add(acc, x, 0, net.nbCliques)
		return acc
	}

	partial := make([]*accumulator, workers)
	chunk := (net.nbCliques + workers - 1) / workers
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		from, to := w*chunk, min((w+1)*chunk, net.nbCliques)
		partial[w] = net.newAccumulator(withGradient, withHessian)
		g.Go(func() error {
			net.add(partial[w], x, from, to)
			return nil
		})
	}
	// add cannot fail; the group is only used to join the workers.
	_ = g.Wait()

	acc := partial[0]
	for _, p := range partial[1:] {
		acc.merge(p)
	}
	return acc
}
