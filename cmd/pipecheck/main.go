// Command pipecheck runs images through the HDR pipeline checker and
// verifies the color kernels against the reference values.
//
// Usage:
//
//	pipecheck verify [-stage n]
//	pipecheck run [flags] image...
//	pipecheck backends
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/gogpu/pipecheck"
	"github.com/gogpu/pipecheck/backend"
	_ "github.com/gogpu/pipecheck/backend/native"
	_ "github.com/gogpu/pipecheck/backend/software"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: pipecheck <command> [flags]

commands:
  verify     check the CPU kernels against the reference values
  run        render images and report BC round trip metrics
  backends   list registered backends
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "verify":
		err = verifyCmd(args)
	case "run":
		err = runCmd(args)
	case "backends":
		for _, name := range backend.Available() {
			fmt.Println(name)
		}
	case "-h", "-help", "--help", "help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipecheck:", err)
		os.Exit(1)
	}
}

func verboseFlag(fs *flag.FlagSet) *bool {
	return fs.Bool("v", false, "debug logging")
}

// installLogger sends library logs to stderr as text.
func installLogger(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	pipecheck.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
