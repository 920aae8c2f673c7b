// Command quiverctl is the remote-client CLI: every subcommand is a
// thin wrapper around one internal/remoteclient call.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"golang.org/x/term"

	"github.com/entropycollective/quiverdb/internal/remoteclient"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	host := fs.String("host", "http://127.0.0.1:1978", "server base URL")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	max := fs.Int("max", -1, "maximum results (-1 = unlimited)")
	fs.Parse(args)
	rest := fs.Args()

	client := remoteclient.New(*host, *timeout)
	ctx := context.Background()
	color := term.IsTerminal(int(os.Stdout.Fd()))

	var err error
	switch cmd {
	case "get":
		err = runGet(ctx, client, rest)
	case "set":
		err = runSet(ctx, client, rest)
	case "remove":
		err = requireOne(rest, func(key string) error { return client.Remove(ctx, key) })
	case "check":
		err = runCheck(ctx, client, rest)
	case "clear":
		err = client.Clear(ctx)
	case "synchronize":
		err = client.Synchronize(ctx)
	case "vacuum":
		err = client.Vacuum(ctx)
	case "match_prefix":
		err = runMatch(ctx, client.MatchPrefix, rest, *max)
	case "match_regex":
		err = runMatch(ctx, client.MatchRegex, rest, *max)
	case "report":
		err = runCounters(ctx, client.Report, color)
	case "status":
		err = runCounters(ctx, client.Status, color)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "quiverctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: quiverctl <get|set|remove|check|clear|synchronize|vacuum|match_prefix|match_regex|report|status> [-host URL] [-timeout D] [args]")
}

func requireOne(args []string, fn func(string) error) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one argument")
	}
	return fn(args[0])
}

func runGet(ctx context.Context, c *remoteclient.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <key>")
	}
	value, ok, err := c.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no record for key %q", args[0])
	}
	fmt.Println(value)
	return nil
}

func runSet(ctx context.Context, c *remoteclient.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set <key> <value>")
	}
	return c.Set(ctx, args[0], args[1])
}

func runCheck(ctx context.Context, c *remoteclient.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: check <key>")
	}
	size, ok, err := c.Check(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no record for key %q", args[0])
	}
	fmt.Println(size)
	return nil
}

func runMatch(ctx context.Context, fn func(context.Context, string, int) ([]string, error), args []string, max int) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one pattern argument")
	}
	keys, err := fn(ctx, args[0], max)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

func runCounters(ctx context.Context, fn func(context.Context) (map[string]string, error), color bool) error {
	out, err := fn(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if color {
			fmt.Printf("\x1b[36m%s\x1b[0m\t%s\n", k, out[k])
		} else {
			fmt.Printf("%s\t%s\n", k, out[k])
		}
	}
	return nil
}
