package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/quailyquaily/threadbot/canvas"
	"github.com/quailyquaily/threadbot/canvas/editor"
	"github.com/quailyquaily/threadbot/integration"
	"github.com/quailyquaily/threadbot/tools"
	"github.com/spf13/cobra"
)

func newCanvasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canvas",
		Short: "List, read, create and edit canvases in the configured store",
	}
	cmd.AddCommand(newCanvasListCmd(), newCanvasReadCmd(), newCanvasCreateCmd(), newCanvasEditCmd())
	return cmd
}

func canvasRuntime(cmd *cobra.Command) (*integration.Runtime, error) {
	rt, err := newRuntime(cmd, false, "canvas")
	if err != nil {
		return nil, err
	}
	if rt.Store == nil {
		_ = rt.Close()
		return nil, fmt.Errorf("no canvas store configured (canvas.store is none)")
	}
	return rt, nil
}

func newCanvasListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List canvases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := canvasRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			channel, _ := cmd.Flags().GetString("channel")
			items, err := rt.Store.List(cmd.Context(), channel)
			if err != nil {
				return err
			}
			return writeCanvasList(cmd.OutOrStdout(), items)
		},
	}
	cmd.Flags().String("channel", "", "Only canvases shared in this channel.")
	return cmd
}

func newCanvasReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <canvas-id>",
		Short: "Print a canvas as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := canvasRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			doc, err := rt.Store.Read(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), doc.Markdown())
			return err
		},
	}
	cmd.Flags().Bool("json", false, "Print the sections with their ids as JSON.")
	return cmd
}

func newCanvasCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a canvas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			markdown, _ := cmd.Flags().GetString("markdown")
			if path, _ := cmd.Flags().GetString("file"); strings.TrimSpace(path) != "" {
				raw, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				markdown = string(raw)
			}
			channel, _ := cmd.Flags().GetString("channel")

			rt, err := canvasRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			created, err := rt.Store.Create(cmd.Context(), title, markdown, channel)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), created.ID)
			return err
		},
	}
	cmd.Flags().String("title", "", "Canvas title.")
	cmd.Flags().String("markdown", "", "Initial markdown content.")
	cmd.Flags().String("file", "", "Read the initial markdown from this file.")
	cmd.Flags().String("channel", "", "Channel to share the canvas in.")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newCanvasEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <canvas-id> <instruction...>",
		Short: "Apply a natural-language edit with the canvas editor",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := canvasRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			errOut := cmd.ErrOrStderr()
			status := tools.StatusFunc(func(text string) {
				fmt.Fprintf(errOut, "  … threadbot %s\n", text)
			})
			out, err := rt.Editor.Edit(cmd.Context(), args[0], strings.Join(args[1:], " "), tools.Runtime{Status: status, UserID: "cli"})
			if err != nil {
				return err
			}
			return writeEditOutcome(cmd.OutOrStdout(), out)
		},
	}
	return cmd
}

func writeCanvasList(w io.Writer, items []canvas.Summary) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "no canvases")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCHANNEL\tUPDATED")
	for _, it := range items {
		updated := ""
		if !it.UpdatedAt.IsZero() {
			updated = it.UpdatedAt.UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.ID, it.Title, it.ChannelID, updated)
	}
	return tw.Flush()
}

func writeEditOutcome(w io.Writer, out editor.Outcome) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(out.Summary))
	fmt.Fprintf(&b, "%d change(s) applied, +%d -%d lines", len(out.Applied), out.Added, out.Removed)
	if out.Incomplete {
		b.WriteString(" (step budget reached)")
	}
	b.WriteString("\n")
	if d := strings.TrimSpace(out.Diff); d != "" && len(out.Applied) > 0 {
		b.WriteString("\n" + d + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
