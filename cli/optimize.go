package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/trajopt/diffmap"
	"go.viam.com/trajopt/logging"
	"go.viam.com/trajopt/motionopt"
	"go.viam.com/trajopt/sdf"
)

// circleConfig is a disc obstacle in the workspace.
type circleConfig struct {
	Center []float64 `json:"center"`
	Radius float64   `json:"radius"`
}

// problemConfig is the JSON problem file: the optimization options and the obstacles.
type problemConfig struct {
	motionopt.Options
	Circles []circleConfig `json:"circles,omitempty"`
	// GridResolution samples the obstacles into a distance grid with this spacing when positive.
	GridResolution float64 `json:"grid_resolution,omitempty"`
}

// gridPadding is added around the obstacles and endpoints when sampling the distance grid.
const gridPadding = 0.5

// readProblem loads a problem file. Options missing from the file keep their defaults.
func readProblem(path string) (*problemConfig, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading problem")
	}
	cfg := &problemConfig{Options: *motionopt.DefaultOptions()}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing problem %q", path)
	}
	return cfg, nil
}

// workspace returns the signed distance field of the obstacles, or nil without obstacles. With a
// grid resolution the analytic field is sampled over the region the trajectory can reach.
func (cfg *problemConfig) workspace() (diffmap.Map, error) {
	field, err := cfg.circles()
	if err != nil {
		return nil, err
	}
	if field == nil {
		return nil, nil
	}
	if cfg.GridResolution == 0 {
		return field, nil
	}
	if cfg.GridResolution < 0 {
		return nil, errors.Errorf("grid_resolution must be positive, got %g", cfg.GridResolution)
	}
	if len(cfg.QInit) != 2 || len(cfg.QGoal) != 2 {
		return nil, errors.New("a distance grid needs a 2D problem")
	}
	return sdf.SampleGrid(field, cfg.gridExtent(), cfg.GridResolution)
}

// gridExtent bounds q_init, q_goal and every circle, padded by gridPadding.
func (cfg *problemConfig) gridExtent() r2.Rect {
	extent := r2.RectFromPoints(
		r2.Point{X: cfg.QInit[0], Y: cfg.QInit[1]},
		r2.Point{X: cfg.QGoal[0], Y: cfg.QGoal[1]},
	)
	for _, c := range cfg.Circles {
		size := r2.Point{X: 2 * c.Radius, Y: 2 * c.Radius}
		extent = extent.Union(r2.RectFromCenterSize(r2.Point{X: c.Center[0], Y: c.Center[1]}, size))
	}
	return extent.ExpandedByMargin(gridPadding)
}

func (cfg *problemConfig) circles() (*sdf.Workspace, error) {
	if len(cfg.Circles) == 0 {
		return nil, nil
	}
	if bad, found := lo.Find(cfg.Circles, func(c circleConfig) bool { return len(c.Center) != 2 }); found {
		return nil, errors.Errorf("circle center must have 2 values, got %v", bad.Center)
	}
	centers := lo.Map(cfg.Circles, func(c circleConfig, _ int) r2.Point {
		return r2.Point{X: c.Center[0], Y: c.Center[1]}
	})
	circles := make([]*sdf.Circle, 0, len(centers))
	for i, center := range centers {
		circle, err := sdf.NewCircle(center, cfg.Circles[i].Radius)
		if err != nil {
			return nil, errors.Wrapf(err, "circle %d", i)
		}
		circles = append(circles, circle)
	}
	return sdf.NewWorkspace(circles...)
}

// optimizeOutput is written to the --out file.
type optimizeOutput struct {
	Status       motionopt.Status `json:"status"`
	Iterations   int              `json:"iterations"`
	InitialCost  float64          `json:"initial_cost"`
	Cost         float64          `json:"cost"`
	GradientNorm float64          `json:"gradient_norm"`
	Segments     segmentStats     `json:"segments"`
	Waypoints    [][]float64      `json:"waypoints"`
}

// segmentStats summarizes the distances between consecutive waypoints.
type segmentStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Max    float64 `json:"max"`
}

func summarizeSegments(waypoints [][]float64) (segmentStats, error) {
	if len(waypoints) < 2 {
		return segmentStats{}, errors.New("need at least two waypoints")
	}
	lengths := make(stats.Float64Data, 0, len(waypoints)-1)
	for i := 1; i < len(waypoints); i++ {
		lengths = append(lengths, floats.Distance(waypoints[i], waypoints[i-1], 2))
	}
	mean, err := stats.Mean(lengths)
	sd, err2 := stats.StandardDeviation(lengths)
	maxLength, err3 := stats.Max(lengths)
	if err := multierr.Combine(err, err2, err3); err != nil {
		return segmentStats{}, err
	}
	return segmentStats{Mean: mean, StdDev: sd, Max: maxLength}, nil
}

// OptimizeAction optimizes the straight line of the problem in --config and writes the result to
// --out.
func OptimizeAction(c *cli.Context) error {
	level, err := logging.LevelFromString(c.String(logLevelFlag))
	if err != nil {
		return err
	}
	logger := logging.NewLogger("trajopt", c.App.ErrWriter)
	logger.SetLevel(level)
	//nolint:errcheck
	defer logger.Sync()
	ctx := c.Context
	if c.Bool(debugFlag) {
		ctx = logging.EnableDebugMode(ctx)
	}

	cfg, err := readProblem(c.Path(configFlag))
	if err != nil {
		return err
	}
	field, err := cfg.workspace()
	if err != nil {
		return err
	}
	mo, err := motionopt.NewMotionOptimization(&cfg.Options, field, logger)
	if err != nil {
		return err
	}
	traj, err := mo.InitialTrajectory()
	if err != nil {
		return err
	}
	res, err := mo.Optimize(ctx, traj)
	if err != nil {
		return err
	}

	waypoints := traj.Waypoints()
	segments, err := summarizeSegments(waypoints)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(optimizeOutput{
		Status:       res.Status,
		Iterations:   res.Iterations,
		InitialCost:  res.InitialCost,
		Cost:         res.Cost,
		GradientNorm: res.GradientNorm,
		Segments:     segments,
		Waypoints:    waypoints,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Path(outFlag), data, 0o600); err != nil {
		return errors.Wrap(err, "writing result")
	}
	fmt.Fprintf(c.App.Writer, "%s after %d iterations, cost %.6g -> %.6g, wrote %s\n",
		res.Status, res.Iterations, res.InitialCost, res.Cost, c.Path(outFlag))
	return nil
}
