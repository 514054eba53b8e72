package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/imgembed/pkg/dimension"
	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/observability"
	"github.com/matzehuels/imgembed/pkg/pipeline"
	"github.com/matzehuels/imgembed/pkg/vector"
)

// resolveResult is the --json output of the resolve command.
type resolveResult struct {
	pipeline.Payload
	AltText string `json:"alt_text,omitempty"`
}

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	var (
		flags   imageFlags
		width   float64
		height  float64
		alt     string
		output  string
		diagram string
		lang    string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [source]",
		Short: "Resolve a single image reference",
		Long: `Resolve a single image reference into an embeddable payload.

The source may be a URL, a data URL or a local path. With --diagram, an SVG
or Graphviz DOT file is rasterized instead. Failed references resolve to the
placeholder and are reported as a warning.`,
		Example: `  imgembed resolve https://example.com/logo.webp -o logo.png
  imgembed resolve ./figures/plot.bmp --width 300
  imgembed resolve --diagram deps.dot -o deps.png`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (diagram != "") {
				return errors.New(errors.ErrCodeInvalidInput, "pass either a source or --diagram")
			}
			ctx := cmd.Context()
			override := dimension.Override{Width: width, Height: height}

			var ref pipeline.Reference
			if diagram != "" {
				r, err := diagramReference(diagram, lang, override, alt)
				if err != nil {
					return err
				}
				ref = r
			} else {
				ref = pipeline.NewReference(args[0], override, alt)
			}

			p, cleanup, err := c.newPlugin(ctx, flags.options(cmd, c.cfg().Images))
			if err != nil {
				return err
			}
			defer cleanup()

			spinner := newSpinnerWithContext(ctx, "Resolving "+ref.Kind.String()+" image")
			observability.SetHTTPHooks(spinnerHTTPHooks{spinner: spinner})
			defer observability.SetHTTPHooks(observability.NoopHTTPHooks{})
			spinner.Start()
			payload := p.Runner().Resolve(ctx, ref)
			spinner.Stop()
			if err := ctx.Err(); err != nil {
				return err
			}

			if output != "" {
				if err := writeOutput(output, payload.Data); err != nil {
					return err
				}
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resolveResult{Payload: payload, AltText: ref.AltText()})
			}
			if output == "-" {
				return nil
			}
			printPayload(payload, ref.AltText())
			if output != "" {
				printFile(output)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().Float64Var(&width, "width", 0, "requested width in pixels")
	cmd.Flags().Float64Var(&height, "height", 0, "requested height in pixels")
	cmd.Flags().StringVar(&alt, "alt", "", "alt text")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the image bytes to a file (- for stdout)")
	cmd.Flags().StringVar(&diagram, "diagram", "", "SVG or DOT file to rasterize")
	cmd.Flags().StringVar(&lang, "lang", "", "diagram language (dot, or the generator name for SVG fixups)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the payload as JSON")

	return cmd
}

// diagramReference reads a diagram file. DOT sources (by --lang or a
// .dot/.gv extension) are laid out by Graphviz; anything else is SVG.
func diagramReference(path, lang string, override dimension.Override, alt string) (pipeline.Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Reference{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "read diagram")
	}

	lang = strings.ToLower(lang)
	if lang == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".dot", ".gv":
			lang = "dot"
		}
	}

	var src vector.Source
	if lang == "dot" || lang == vector.DiagramGraphviz {
		src = vector.Graphviz(string(data))
	} else {
		src = vector.Literal(string(data), lang)
	}
	return pipeline.VectorReference(src, override, alt), nil
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", path)
	}
	return nil
}

func printPayload(p pipeline.Payload, alt string) {
	if p.Fallback {
		printWarning("Resolved to placeholder")
	} else {
		printSuccess("Resolved %s image", p.Type)
	}
	printKeyValue("Type", string(p.Type))
	printKeyValue("Size", fmt.Sprintf("%.0f × %.0f px", p.Width, p.Height))
	printKeyValue("Bytes", fmt.Sprintf("%d", len(p.Data)))
	if alt != "" {
		printKeyValue("Alt", alt)
	}
}
