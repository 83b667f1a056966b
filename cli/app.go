// Package cli contains the trajopt command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	configFlag   = "config"
	outFlag      = "out"
	debugFlag    = "debug"
	logLevelFlag = "log-level"
)

var app = &cli.App{
	Name:            "trajopt",
	Usage:           "optimize smooth collision-free trajectories",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "trace every solver iteration regardless of --log-level",
		},
		&cli.StringFlag{
			Name:  logLevelFlag,
			Value: "info",
			Usage: "minimum level of logs written to stderr: debug, info, warn or error",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "optimize",
			Usage:     "optimize the straight line between q_init and q_goal of a problem",
			UsageText: "trajopt optimize --config problem.json --out result.json",
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:     configFlag,
					Aliases:  []string{"c"},
					Required: true,
					Usage:    "load the problem from `FILE`",
				},
				&cli.PathFlag{
					Name:     outFlag,
					Aliases:  []string{"o"},
					Required: true,
					Usage:    "write the optimized trajectory to `FILE`",
				},
			},
			Action: OptimizeAction,
		},
	},
}

// NewApp returns the app with its output redirected.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
