package sdf

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/trajopt/diffmap"
)

// Grid is a field sampled on a regular lattice and bilinearly interpolated between samples.
// Queries outside the extent are clamped to it, so the field is constant along a clamped axis and
// its derivatives along that axis are zero.
type Grid struct {
	extent     r2.Rect
	resolution float64
	// values[i][j] is the sample at extent.Lo() + resolution·(i, j).
	values *mat.Dense
}

// NewGrid wraps samples laid out with rows along X and columns along Y. The grid needs at least
// two samples along each axis.
func NewGrid(origin r2.Point, resolution float64, values *mat.Dense) (*Grid, error) {
	if resolution <= 0 {
		return nil, errors.Errorf("grid resolution must be positive, got %g", resolution)
	}
	nx, ny := values.Dims()
	if nx < 2 || ny < 2 {
		return nil, errors.Errorf("grid needs at least 2x2 samples, got %dx%d", nx, ny)
	}
	hi := origin.Add(r2.Point{X: float64(nx-1) * resolution, Y: float64(ny-1) * resolution})
	return &Grid{
		extent:     r2.RectFromPoints(origin, hi),
		resolution: resolution,
		values:     mat.DenseCopyOf(values),
	}, nil
}

// SampleGrid evaluates field on every lattice point of extent spaced by resolution.
func SampleGrid(field diffmap.Map, extent r2.Rect, resolution float64) (*Grid, error) {
	if err := diffmap.CheckDimensions(field, 2, 1); err != nil {
		return nil, err
	}
	if resolution <= 0 {
		return nil, errors.Errorf("grid resolution must be positive, got %g", resolution)
	}
	size := extent.Size()
	// Absorb rounding so an extent that is a whole number of cells keeps its last row.
	const slack = 1e-9
	nx := int(math.Floor(size.X/resolution+slack)) + 1
	ny := int(math.Floor(size.Y/resolution+slack)) + 1
	if nx < 2 || ny < 2 {
		return nil, errors.Errorf("extent %v too small for resolution %g", extent, resolution)
	}
	values := mat.NewDense(nx, ny, nil)
	lo := extent.Lo()
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			p := lo.Add(r2.Point{X: float64(i) * resolution, Y: float64(j) * resolution})
			values.Set(i, j, diffmap.Value(field, mat.NewVecDense(2, []float64{p.X, p.Y})))
		}
	}
	return NewGrid(lo, resolution, values)
}

// Extent returns the rectangle covered by the samples.
func (g *Grid) Extent() r2.Rect { return g.extent }

// InputDimension is always 2.
func (g *Grid) InputDimension() int { return 2 }

// OutputDimension is always 1.
func (g *Grid) OutputDimension() int { return 1 }

// cell locates x: lower-left sample indices and the fractional offsets within the cell.
type cell struct {
	i, j   int
	tx, ty float64
	// outX, outY are set when the query was clamped along that axis.
	outX, outY bool
	// corners f(i,j), f(i+1,j), f(i,j+1), f(i+1,j+1).
	f00, f10, f01, f11 float64
}

func (g *Grid) locate(x mat.Vector) cell {
	q := point(x)
	clamped := g.extent.ClampPoint(q)
	p := clamped.Sub(g.extent.Lo())
	nx, ny := g.values.Dims()
	fx, fy := p.X/g.resolution, p.Y/g.resolution
	i := min(int(math.Floor(fx)), nx-2)
	j := min(int(math.Floor(fy)), ny-2)
	return cell{
		i: i, j: j,
		tx: fx - float64(i), ty: fy - float64(j),
		outX: clamped.X != q.X, outY: clamped.Y != q.Y,
		f00: g.values.At(i, j), f10: g.values.At(i+1, j),
		f01: g.values.At(i, j+1), f11: g.values.At(i+1, j+1),
	}
}

// Forward returns the interpolated value.
func (g *Grid) Forward(x mat.Vector) *mat.VecDense {
	c := g.locate(x)
	v := (1-c.tx)*(1-c.ty)*c.f00 + c.tx*(1-c.ty)*c.f10 + (1-c.tx)*c.ty*c.f01 + c.tx*c.ty*c.f11
	return mat.NewVecDense(1, []float64{v})
}

// Jacobian returns the gradient of the interpolant within the cell containing x.
func (g *Grid) Jacobian(x mat.Vector) *mat.Dense {
	c := g.locate(x)
	dx := ((1-c.ty)*(c.f10-c.f00) + c.ty*(c.f11-c.f01)) / g.resolution
	dy := ((1-c.tx)*(c.f01-c.f00) + c.tx*(c.f11-c.f10)) / g.resolution
	if c.outX {
		dx = 0
	}
	if c.outY {
		dy = 0
	}
	return mat.NewDense(1, 2, []float64{dx, dy})
}

// Hessian of a bilinear interpolant only has the mixed term.
func (g *Grid) Hessian(x mat.Vector) *mat.SymDense {
	c := g.locate(x)
	dxy := (c.f11 - c.f10 - c.f01 + c.f00) / (g.resolution * g.resolution)
	if c.outX || c.outY {
		dxy = 0
	}
	return mat.NewSymDense(2, []float64{0, dxy, dxy, 0})
}
