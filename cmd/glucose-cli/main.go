package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/glucose.report/internal/httputil"
	"github.com/banshee-data/glucose.report/internal/version"
)

// cli carries the process streams so commands can be run from tests.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// http is used by the remote backend. Nil means http.DefaultClient.
	http httputil.HTTPClient
}

func main() {
	c := &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	flag.Usage = func() { c.usage() }
	flag.Parse()
	if flag.NArg() < 1 {
		c.usage()
		os.Exit(1)
	}
	if err := c.run(context.Background(), flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "glucose-cli: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "glucose":
		return c.glucose(ctx, args)
	case "insulin":
		return c.insulin(ctx, args)
	case "status":
		return c.status(ctx, args)
	case "runs":
		return c.runs(ctx, args)
	case "trajectory":
		return c.trajectory(ctx, args)
	case "migrate":
		return c.migrate(args)
	case "version":
		fmt.Fprintln(c.stdout, "glucose-cli", version.String())
		return nil
	case "help":
		c.usage()
		return nil
	}
	c.usage()
	return fmt.Errorf("unknown command: %s", command)
}

func (c *cli) usage() {
	fmt.Fprint(c.stderr, `glucose-cli - predictions and maintenance for glucose.report

Usage: glucose-cli <command> [options]

Commands:
  glucose     Predict glucose from a JSON request
  insulin     Recommend an insulin dose from a JSON request
  status      Show which models are trained
  runs        List training runs recorded in the database
  trajectory  Export a subject's trajectory chart as HTML
  migrate     Manage database schema migrations
  version     Show version
  help        Show this help message

Prediction commands read the request from -f (default: stdin) and use
either a running server (-server) or local model artifacts (-models).

Examples:
  echo '{"currentGlucose":150,"insulinDose":2}' | glucose-cli glucose -server http://localhost:5000
  glucose-cli insulin -models ./models -f request.json
  glucose-cli trajectory -db glucose.db -subject 559 -o 559.html
  glucose-cli migrate -db glucose.db status
`)
}
