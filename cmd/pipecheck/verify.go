package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/gogpu/pipecheck/internal/golden"
)

func verifyCmd(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	stage := fs.Int("stage", 0, "only check scenarios of this stage number (4-9)")
	verbose := verboseFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	installLogger(*verbose)

	ref, err := golden.Load()
	if err != nil {
		return err
	}
	results := golden.Verify(ref, golden.CPU, *stage)
	if len(results) == 0 {
		return fmt.Errorf("no scenarios for stage %d", *stage)
	}

	var failed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Printf("ERROR %-40s %v\n", r.Scenario.Name, r.Err)
		case r.Failed() > 0:
			fmt.Printf("FAIL  %-40s %d/%d\n", r.Scenario.Name, r.Passed(), len(r.Points))
		default:
			fmt.Printf("ok    %-40s %d/%d\n", r.Scenario.Name, r.Passed(), len(r.Points))
		}
		for _, p := range r.Points {
			if !p.Pass || *verbose {
				fmt.Printf("      %-16s got %.5f %.5f %.5f want %.5f %.5f %.5f (delta %.2g, tol %.2g)\n",
					p.Point, p.Computed[0], p.Computed[1], p.Computed[2],
					p.Expected.R, p.Expected.G, p.Expected.B, p.MaxDelta, r.Scenario.Tolerance)
			}
		}
		failed += r.Failed()
	}
	if failed > 0 {
		return errors.New("reference check failed")
	}
	return nil
}
