package cliques

import (
	"go.viam.com/trajopt/diffmap"
)

// selector returns the linear map picking elements [first, last) out of a clique of three
// elements of dimension n.
func selector(n, first, last int) *diffmap.AffineMap {
	indices := make([]int, 0, (last-first)*n)
	for i := first * n; i < last*n; i++ {
		indices = append(indices, i)
	}
	f, err := diffmap.RangeSubspace(CliqueWidth*n, indices)
	if err != nil {
		// Indices are always in range for 0 ≤ first < last ≤ CliqueWidth.
		panic(err)
	}
	return f
}

// CenterOfCliqueMap selects the middle element of a clique.
func CenterOfCliqueMap(n int) *diffmap.AffineMap { return selector(n, 1, 2) }

// LeftMostOfCliqueMap selects the first element of a clique.
func LeftMostOfCliqueMap(n int) *diffmap.AffineMap { return selector(n, 0, 1) }

// RightMostOfCliqueMap selects the last element of a clique.
func RightMostOfCliqueMap(n int) *diffmap.AffineMap { return selector(n, 2, 3) }

// LeftOfCliqueMap selects the first two elements of a clique.
func LeftOfCliqueMap(n int) *diffmap.AffineMap { return selector(n, 0, 2) }

// RightOfCliqueMap selects the last two elements of a clique.
func RightOfCliqueMap(n int) *diffmap.AffineMap { return selector(n, 1, 3) }
