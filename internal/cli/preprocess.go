package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/plugin"
)

// preprocessCommand creates the preprocess command.
func (c *CLI) preprocessCommand() *cobra.Command {
	var (
		flags       imageFlags
		definitions string
		output      string
		noProgress  bool
	)

	cmd := &cobra.Command{
		Use:   "preprocess [tree.json]",
		Short: "Resolve every image in a content tree",
		Long: `Resolve every image in a JSON content tree and attach the payloads.

The tree is read from the file argument or stdin. Nodes of type "image",
"imageReference" and "svg" receive a data object; the updated tree is written
to --output or stdout.`,
		Example: `  imgembed preprocess doc.json -d refs.json -o doc.resolved.json
  cat doc.json | imgembed preprocess --no-cache > out.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in := "-"
			if len(args) == 1 {
				in = args[0]
			}

			var root plugin.Node
			if err := readJSON(in, &root); err != nil {
				return err
			}
			var defs plugin.Definitions
			if definitions != "" {
				if err := readJSON(definitions, &defs); err != nil {
					return err
				}
			}

			p, cleanup, err := c.newPlugin(ctx, flags.options(cmd, c.cfg().Images))
			if err != nil {
				return err
			}
			defer cleanup()

			run := func(ctx context.Context) error { return p.Preprocess(ctx, &root, defs) }
			if !noProgress && isTerminal(os.Stderr) {
				err = runWithProgress(ctx, os.Stderr, run)
			} else {
				err = run(ctx)
			}
			if err != nil {
				return err
			}

			if err := writeJSON(output, &root); err != nil {
				return err
			}
			if output != "" && output != "-" {
				printSummary(&root)
				printFile(output)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&definitions, "definitions", "d", "", "JSON file mapping reference identifiers to URLs")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress view")

	return cmd
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func readJSON(path string, v any) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", path)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode %s", path)
	}
	return nil
}

func writeJSON(path string, v any) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", path)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// Summary
// =============================================================================

// printSummary prints one table row per image node.
func printSummary(root *plugin.Node) {
	var rows [][]string
	var fallbacks int
	root.Walk(func(n *plugin.Node) {
		if !n.IsImage() || n.Data == nil {
			return
		}
		status := "ok"
		if n.Data.Fallback {
			status = "fallback"
			fallbacks++
		}
		rows = append(rows, []string{
			n.Type,
			truncate(nodeSource(n), 40),
			string(n.Data.Type),
			fmt.Sprintf("%.0f×%.0f", n.Data.Width, n.Data.Height),
			status,
		})
	})
	if len(rows) == 0 {
		printInfo("No images found")
		return
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Node", "Source", "Type", "Size", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 4 && rows[row][4] == "fallback" {
				return StyleWarning
			}
			return lipgloss.NewStyle()
		})

	fmt.Println(t.Render())
	printStats(len(rows), fallbacks)
}

func nodeSource(n *plugin.Node) string {
	switch n.Type {
	case plugin.TypeImage:
		return n.URL
	case plugin.TypeImageReference:
		return "[" + n.Identifier + "]"
	}
	if n.Lang != "" {
		return n.Lang + " diagram"
	}
	return "svg"
}
