package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/trajopt/diffmap"
	"go.viam.com/trajopt/motionopt"
	"go.viam.com/trajopt/sdf"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
	return path
}

func TestReadProblem(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "problem.json", `{
		"horizon": 12,
		"q_goal": [2, 1],
		"boundary": "clamp",
		"circles": [{"center": [0.5, 0.5], "radius": 0.1}]
	}`)
	cfg, err := readProblem(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.T, test.ShouldEqual, 12)
	test.That(t, cfg.QGoal, test.ShouldResemble, []float64{2, 1})
	test.That(t, cfg.Boundary, test.ShouldEqual, motionopt.ClampBoundary)
	// Unset options keep their defaults.
	test.That(t, cfg.Dt, test.ShouldEqual, motionopt.DefaultOptions().Dt)
	test.That(t, cfg.QInit, test.ShouldResemble, []float64{0, 0})
	test.That(t, cfg.Circles, test.ShouldHaveLength, 1)

	field, err := cfg.workspace()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, field, test.ShouldNotBeNil)

	cfg.Circles = append(cfg.Circles, circleConfig{Center: []float64{1}, Radius: 1})
	_, err = cfg.workspace()
	test.That(t, err, test.ShouldNotBeNil)
	cfg.Circles = []circleConfig{{Center: []float64{1, 1}, Radius: -1}}
	_, err = cfg.workspace()
	test.That(t, err, test.ShouldNotBeNil)

	cfg.Circles = nil
	field, err = cfg.workspace()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, field, test.ShouldBeNil)

	// Sampling the circles into a grid keeps the field close to the analytic one.
	cfg.Circles = []circleConfig{{Center: []float64{0.5, 0.5}, Radius: 0.1}}
	analytic, err := cfg.workspace()
	test.That(t, err, test.ShouldBeNil)
	cfg.GridResolution = 0.05
	extent := cfg.gridExtent()
	test.That(t, extent.Lo(), test.ShouldResemble, r2.Point{X: -0.5, Y: -0.5})
	test.That(t, extent.Hi(), test.ShouldResemble, r2.Point{X: 2.5, Y: 1.5})
	field, err = cfg.workspace()
	test.That(t, err, test.ShouldBeNil)
	grid, ok := field.(*sdf.Grid)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, grid.Extent().ApproxEqual(extent), test.ShouldBeTrue)
	for _, p := range [][]float64{{0, 0}, {0.5, 0.7}, {1.3, 0.2}} {
		x := mat.NewVecDense(2, p)
		test.That(t, diffmap.Value(grid, x), test.ShouldAlmostEqual, diffmap.Value(analytic, x), 0.01)
	}

	cfg.GridResolution = -1
	_, err = cfg.workspace()
	test.That(t, err, test.ShouldNotBeNil)
	cfg.GridResolution = 0.05
	cfg.QGoal = []float64{1, 1, 1}
	_, err = cfg.workspace()
	test.That(t, err, test.ShouldNotBeNil)

	_, err = readProblem(writeFile(t, dir, "broken.json", `{"horizon": `))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = readProblem(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOptimizeAction(t *testing.T) {
	dir := t.TempDir()
	config := writeFile(t, dir, "problem.json", `{
		"horizon": 10,
		"q_init": [0, 0],
		"q_goal": [1, 1],
		"gradient_tolerance": 1e-5,
		"circles": [{"center": [0.8, 0.2], "radius": 0.2}]
	}`)
	outPath := filepath.Join(dir, "result.json")

	var out, errOut bytes.Buffer
	app := NewApp(&out, &errOut)
	err := app.Run([]string{"trajopt", "optimize", "--config", config, "--out", outPath})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "converged")
	test.That(t, errOut.String(), test.ShouldContainSubstring, "motion optimization done")
	test.That(t, errOut.String(), test.ShouldNotContainSubstring, "newton iteration")

	//nolint:gosec
	data, err := os.ReadFile(outPath)
	test.That(t, err, test.ShouldBeNil)
	var result struct {
		Status       string      `json:"status"`
		Iterations   int         `json:"iterations"`
		InitialCost  float64     `json:"initial_cost"`
		Cost         float64     `json:"cost"`
		GradientNorm float64     `json:"gradient_norm"`
		Segments     struct {
			Mean   float64 `json:"mean"`
			StdDev float64 `json:"std_dev"`
			Max    float64 `json:"max"`
		} `json:"segments"`
		Waypoints [][]float64 `json:"waypoints"`
	}
	test.That(t, json.Unmarshal(data, &result), test.ShouldBeNil)
	test.That(t, result.Status, test.ShouldEqual, "converged")
	test.That(t, result.Cost, test.ShouldBeLessThan, result.InitialCost)
	test.That(t, result.GradientNorm, test.ShouldBeLessThan, 1e-5)
	test.That(t, result.Waypoints, test.ShouldHaveLength, 12)
	test.That(t, result.Waypoints[0], test.ShouldResemble, []float64{0, 0})
	test.That(t, result.Segments.Mean, test.ShouldBeGreaterThan, 0)
	test.That(t, result.Segments.Max, test.ShouldBeGreaterThanOrEqualTo, result.Segments.Mean)

	// The straight line crosses the obstacle's influence, so the waypoints must have moved.
	test.That(t, result.Iterations, test.ShouldBeGreaterThan, 0)
}

func TestOptimizeActionErrors(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer
	app := NewApp(&out, &errOut)

	err := app.Run([]string{"trajopt", "optimize", "--out", filepath.Join(dir, "result.json")})
	test.That(t, err, test.ShouldNotBeNil)

	invalid := writeFile(t, dir, "invalid.json", `{"horizon": 0, "solver": "simplex"}`)
	err = app.Run([]string{"trajopt", "optimize", "--config", invalid, "--out", filepath.Join(dir, "result.json")})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "horizon")
	test.That(t, err.Error(), test.ShouldContainSubstring, "simplex")
}

func TestSummarizeSegments(t *testing.T) {
	summary, err := summarizeSegments([][]float64{{0, 0}, {3, 4}, {6, 8}, {6, 8}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Max, test.ShouldAlmostEqual, 5)
	test.That(t, summary.Mean, test.ShouldAlmostEqual, 10.0/3)
	test.That(t, summary.StdDev, test.ShouldBeGreaterThan, 0)

	_, err = summarizeSegments([][]float64{{0, 0}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOptimizeActionLogging(t *testing.T) {
	dir := t.TempDir()
	config := writeFile(t, dir, "problem.json", `{
		"horizon": 10,
		"gradient_tolerance": 1e-4,
		"grid_resolution": 0.02,
		"obstacle_margin": 0.05,
		"circles": [{"center": [0.8, 0.2], "radius": 0.2}]
	}`)
	outPath := filepath.Join(dir, "result.json")

	// --debug traces the solver even though --log-level hides the info summary.
	var out, errOut bytes.Buffer
	app := NewApp(&out, &errOut)
	err := app.Run([]string{"trajopt", "--log-level", "warn", "--debug", "optimize", "-c", config, "-o", outPath})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, errOut.String(), test.ShouldContainSubstring, "trajopt.newton")
	test.That(t, errOut.String(), test.ShouldContainSubstring, "newton iteration")
	test.That(t, errOut.String(), test.ShouldNotContainSubstring, "motion optimization done")

	//nolint:gosec
	data, err := os.ReadFile(outPath)
	test.That(t, err, test.ShouldBeNil)
	var result struct {
		Cost        float64     `json:"cost"`
		InitialCost float64     `json:"initial_cost"`
		Waypoints   [][]float64 `json:"waypoints"`
	}
	test.That(t, json.Unmarshal(data, &result), test.ShouldBeNil)
	test.That(t, result.Cost, test.ShouldBeLessThan, result.InitialCost)
	test.That(t, result.Waypoints, test.ShouldHaveLength, 12)

	out.Reset()
	errOut.Reset()
	app = NewApp(&out, &errOut)
	err = app.Run([]string{"trajopt", "--log-level", "verbose", "optimize", "-c", config, "-o", outPath})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "verbose")
}
