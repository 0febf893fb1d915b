package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/milesdash/internal/core"
	"github.com/JonMunkholm/milesdash/internal/logging"
)

type rootOptions struct {
	quoted   bool
	jsonOut  bool
	logLevel string
	maxSize  int64
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	root := &cobra.Command{
		Use:           "milesreport",
		Short:         "Validate and summarise date,person,miles CSV files",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			w := cmd.ErrOrStderr()
			logging.SetupWriter(w, opts.logLevel, logFormat(w))
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withCode(exitUsage, err)
	})

	flags := root.PersistentFlags()
	flags.BoolVar(&opts.quoted, "quoted", false, "Allow RFC 4180 quoted fields (commas inside quotes)")
	flags.BoolVar(&opts.jsonOut, "json", false, "Write JSON instead of a table")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flags.Int64Var(&opts.maxSize, "max-size", 10<<20, "Maximum file size in bytes")

	root.AddCommand(
		newSummaryCmd(&opts),
		newValidateCmd(&opts),
		newPersonCmd(&opts),
	)
	return root
}

// logFormat picks text for an interactive terminal and JSON otherwise.
func logFormat(w io.Writer) string {
	f, ok := w.(*os.File)
	if !ok {
		return "json"
	}
	if fd := f.Fd(); isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return "text"
	}
	return "json"
}

// usageArgs marks argument-count failures as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return withCode(exitUsage, check(cmd, args))
	}
}

// load runs path through the same upload path the server uses.
func load(ctx context.Context, opts *rootOptions, path string) (core.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.State{}, withCode(exitUsage, fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	svc := core.NewService(
		core.WithMaxBytes(opts.maxSize),
		core.WithParseOptions(core.WithQuotedFields(opts.quoted)),
	)
	st, err := svc.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return st, withCode(exitValidation, err)
	}
	return st, nil
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.csv>",
		Short: "Check a file and report the first problem",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := load(cmd.Context(), opts, args[0])
			out := cmd.OutOrStdout()

			if opts.jsonOut {
				resp := validateResult{Valid: err == nil, File: args[0]}
				if err == nil {
					resp.Records = len(st.Dataset)
					resp.Persons = len(st.Persons)
				} else if st.Err != nil {
					resp.Error = st.Err
				}
				if encErr := writeJSON(out, resp); encErr != nil {
					return encErr
				}
				return err
			}

			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ok: %s records, %s people in %s\n",
				humanize.Comma(int64(len(st.Dataset))),
				humanize.Comma(int64(len(st.Persons))),
				args[0])
			return nil
		},
	}
}

type validateResult struct {
	Valid   bool                  `json:"valid"`
	File    string                `json:"file"`
	Records int                   `json:"records,omitempty"`
	Persons int                   `json:"persons,omitempty"`
	Error   *core.ValidationError `json:"error,omitempty"`
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <file.csv>",
		Short: "Print totals and per-person rankings",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := load(cmd.Context(), opts, args[0])
			if err != nil {
				return err
			}
			view := core.Overview(st.Dataset)
			out := cmd.OutOrStdout()

			if opts.jsonOut {
				return writeJSON(out, view)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			writeSummary(tw, view.Summary)
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "RANK\tPERSON\tMILES")
			for i, t := range view.Totals {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", humanize.Ordinal(i+1), t.Person, miles(t.TotalMiles))
			}
			return tw.Flush()
		},
	}
}

func newPersonCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "person <file.csv> <name>",
		Short: "Print one person's summary and entries in date order",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := load(cmd.Context(), opts, args[0])
			if err != nil {
				return err
			}
			if !st.HasPerson(args[1]) {
				return withCode(exitValidation, fmt.Errorf("%q: %w", args[1], core.ErrUnknownPerson))
			}
			view := core.BuildPersonView(st.Dataset, args[1])
			out := cmd.OutOrStdout()

			if opts.jsonOut {
				return writeJSON(out, view)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Person:\t%s\n", view.Person)
			writeSummary(tw, view.Summary)
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "DAY\tDATE\tMILES")
			for _, p := range view.Series {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Label, p.Date, miles(p.Miles))
			}
			return tw.Flush()
		},
	}
}

func writeSummary(w io.Writer, s core.Summary) {
	fmt.Fprintf(w, "Entries:\t%s\n", humanize.Comma(int64(s.Count)))
	fmt.Fprintf(w, "Total:\t%s\n", miles(s.Total))
	fmt.Fprintf(w, "Average:\t%s\n", miles(s.Average))
	fmt.Fprintf(w, "Shortest:\t%s\n", miles(s.Min))
	fmt.Fprintf(w, "Longest:\t%s\n", miles(s.Max))
}

func miles(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
