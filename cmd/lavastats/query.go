package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lavalink-stats/internal/api"
)

// queryCmd talks to a running instance over its gRPC listener.
func queryCmd() *cobra.Command {
	var addr string
	var timeout time.Duration
	var format string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query a running lavastats over gRPC",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:5001", "gRPC address of the running instance")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "Per-call timeout")
	cmd.PersistentFlags().StringVar(&format, "format", "json", "Output format: json or yaml")

	call := func(cmd *cobra.Command, fn func(ctx context.Context, c *api.Client) (any, error)) error {
		client, err := api.Dial(addr)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		out, err := fn(ctx, client)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), format, out)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "nodes",
			Short: "List configured node ids",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, func(ctx context.Context, c *api.Client) (any, error) {
					return c.ListNodes(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "stats <id>",
			Short: "Show the latest stats of one node",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, func(ctx context.Context, c *api.Client) (any, error) {
					return c.GetStats(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the build of the running instance",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, func(ctx context.Context, c *api.Client) (any, error) {
					return c.GetVersion(ctx)
				})
			},
		},
	)
	return cmd
}

func printOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return nil
	case "yaml":
		// Go through JSON first so keys and numbers match the HTTP surface.
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		out, err := yaml.Marshal(plainNumbers(doc))
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func plainNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = plainNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = plainNumbers(e)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}
