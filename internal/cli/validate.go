package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientPlay/internal/graph"
	"github.com/AaronLay10/SentientPlay/internal/scene"
)

// ErrInvalidProject is returned by validate after the report is written.
var ErrInvalidProject = errors.New("project is invalid")

// GraphReport is one graph's validation outcome.
type GraphReport struct {
	ID       string          `json:"id"`
	Nodes    int             `json:"nodes"`
	Warnings []graph.Warning `json:"warnings,omitempty"`
	Errors   []string        `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool          `json:"valid"`
	Entities int           `json:"entities"`
	Graphs   []GraphReport `json:"graphs"`
	Errors   []string      `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the scene seed and behavior graphs without playing",
		Long: `Loads runtime.yaml, applies the scene seed and checks every behavior graph.

Reports graph files that fail to load, structural violations, action nodes
with no registered handler and entities whose behavior graph is missing.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	p, err := loadProject(opts.Config, newLogger(opts, io.Discard))
	if err != nil {
		return err
	}
	res := validateProject(p)
	if err := writeValidation(cmd.OutOrStdout(), opts.Format, res); err != nil {
		return err
	}
	if !res.Valid {
		return ErrInvalidProject
	}
	return nil
}

func validateProject(p *project) ValidationResult {
	res := ValidationResult{Entities: p.env.Scene.Len(), Graphs: []GraphReport{}}
	for _, err := range p.loadErrs {
		res.Errors = append(res.Errors, err.Error())
	}

	loaded := make(map[string]bool, len(p.graphs))
	for _, g := range p.graphs {
		loaded[g.ID] = true
		report := GraphReport{ID: g.ID, Nodes: len(g.Nodes)}
		warnings, err := graph.Validate(g)
		report.Warnings = warnings
		if err != nil {
			var ve *graph.ValidationError
			if errors.As(err, &ve) {
				for _, is := range ve.Issues {
					report.Errors = append(report.Errors, is.String())
				}
			} else {
				report.Errors = append(report.Errors, err.Error())
			}
		}
		for _, n := range g.Nodes {
			if n.Kind != graph.KindAction {
				continue
			}
			if _, err := p.env.Registry.Lookup(n.Component, n.Method); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("node %q: %v", n.ID, err))
			}
		}
		if len(report.Errors) > 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("graph %q has %d error(s)", g.ID, len(report.Errors)))
		}
		res.Graphs = append(res.Graphs, report)
	}

	p.env.Scene.Walk(func(e scene.Entity) bool {
		if e.Behavior != "" && !loaded[e.Behavior] {
			res.Errors = append(res.Errors, fmt.Sprintf("entity %q: unknown behavior graph %q", e.ID, e.Behavior))
		}
		return true
	})

	res.Valid = len(res.Errors) == 0
	return res
}

func writeValidation(w io.Writer, format string, res ValidationResult) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	for _, g := range res.Graphs {
		status := "ok"
		if len(g.Errors) > 0 {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%-4s %s (%d nodes)\n", status, g.ID, g.Nodes)
		for _, e := range g.Errors {
			fmt.Fprintf(w, "     error: %s\n", e)
		}
		for _, warn := range g.Warnings {
			fmt.Fprintf(w, "     warning: %s\n", warn)
		}
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	if res.Valid {
		fmt.Fprintf(w, "valid: %d entities, %d graphs\n", res.Entities, len(res.Graphs))
	} else {
		fmt.Fprintln(w, "invalid")
	}
	return nil
}
