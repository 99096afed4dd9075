// Command salesctl offers operator helpers for sales order discounts and
// the recompute queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/sales-discount/cmd/odyssey/cli"
)

const usage = `usage: salesctl <command> [flags]

commands:
  discount   combine three discounts: -mode M -d1 X -d2 Y -d3 Z [-json]
  recompute  enqueue an order recompute: -order N [-redis ADDR]
  queue      print default queue stats [-json] [-redis ADDR]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOut := fs.Bool("json", false, "print JSON")
	redisAddr := fs.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address")

	switch args[0] {
	case "discount":
		mode := fs.String("mode", "", "additive or multiplicative (default multiplicative)")
		d1 := fs.Float64("d1", 0, "first discount percentage")
		d2 := fs.Float64("d2", 0, "second discount percentage")
		d3 := fs.Float64("d3", 0, "third discount percentage")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return cli.DiscountCommand(cli.DiscountOptions{
			Mode:       *mode,
			Discounts:  [3]float64{*d1, *d2, *d3},
			JSONOutput: *jsonOut,
			Stdout:     stdout,
			Stderr:     stderr,
		})
	case "recompute":
		orderID := fs.Int64("order", 0, "sales order ID")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return withJobs(*redisAddr, stderr, func(c *cli.JobsCLI) int {
			return c.RecomputeCommand(ctx, cli.RecomputeOptions{OrderID: *orderID, Stdout: stdout, Stderr: stderr})
		})
	case "queue":
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return withJobs(*redisAddr, stderr, func(c *cli.JobsCLI) int {
			return c.QueueCommand(ctx, cli.QueueOptions{JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr})
		})
	default:
		_, _ = fmt.Fprintf(stderr, "salesctl: unknown command %q\n%s", args[0], usage)
		return 2
	}
}

func withJobs(redisAddr string, stderr io.Writer, fn func(*cli.JobsCLI) int) int {
	c, err := cli.NewJobsCLI(redisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "salesctl: %v\n", err)
		return 1
	}
	defer func() {
		if err := c.Close(); err != nil {
			_, _ = fmt.Fprintf(stderr, "salesctl: close: %v\n", err)
		}
	}()
	return fn(c)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
