// Command pmmsim runs the kernel physical page allocator on the host
// against memory maps described in YAML scenario files.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	app := cli.App{
		Name:        "pmmsim",
		Usage:       "simulate the physical page allocator",
		Description: "initializes the kernel bitmap page allocator from a scenario memory map backed by an anonymous mapping",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:    "max-arena-size",
				Usage:   "the largest simulated physical address space in bytes",
				Value:   cfg.MaxArenaSize,
				EnvVars: []string{envVarPrefix + "_MAX_ARENA_SIZE"},
			},
			&cli.BoolFlag{
				Name:    "touch",
				Usage:   "write a pattern to allocated pages and verify it when the scenario completes",
				Value:   cfg.Touch,
				EnvVars: []string{envVarPrefix + "_TOUCH"},
			},
		},
		Commands: []*cli.Command{{
			Name:      "run",
			Usage:     "run the steps of a scenario",
			ArgsUsage: "SCENARIO",
			Action: withScenario(cfg, func(sim *Simulator, s *Scenario) error {
				return sim.Run(s)
			}),
		}, {
			Name:      "layout",
			Aliases:   []string{"init"},
			Usage:     "print the memory map and bitmap placement of a scenario",
			ArgsUsage: "SCENARIO",
			Action: withScenario(cfg, func(sim *Simulator, s *Scenario) error {
				return sim.Layout(s)
			}),
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withScenario(cfg *Config, f func(*Simulator, *Scenario) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("expected exactly one scenario file; got %d arguments", ctx.NArg())
		}

		s, err := LoadScenario(ctx.Args().First())
		if err != nil {
			return err
		}

		simCfg := *cfg
		simCfg.MaxArenaSize = ctx.Uint64("max-arena-size")
		simCfg.Touch = ctx.Bool("touch")

		return f(&Simulator{Config: &simCfg, Out: os.Stdout}, s)
	}
}
