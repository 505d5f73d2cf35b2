package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"doc_ai/internal/app"
	"doc_ai/internal/config"
	"doc_ai/internal/llm"
	"doc_ai/internal/logger"
	"doc_ai/internal/parser"
	"doc_ai/internal/processor"
)

type runtime struct {
	cfg config.Config
	log *charmlog.Logger
}

func createRootCommand() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:   "doc_ai",
		Short: "Analyze documents with a language model, splitting them to fit its context",
		Long: `doc_ai parses text, markdown, HTML and PDF files into a unified document
and sends it to an OpenAI-compatible model. Documents larger than the model's
usable context are split at section, paragraph or sentence boundaries and
processed in order, each part carrying a synopsis of the parts before it.

Without a subcommand doc_ai reads file or folder paths from stdin, one per line.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Init(&rt.cfg); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				rt.cfg.LogLevel = "debug"
			}
			rt.log = logger.New(logger.Config{Level: rt.cfg.LogLevel, JSON: rt.cfg.LogJSON})
			cmd.SetContext(logger.ContextWithLogger(cmd.Context(), rt.log))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.NewFromConfig(&rt.cfg, rt.log)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context(), os.Stdin)
		},
	}
	root.PersistentFlags().Bool("debug", false, "Enable debug logging")

	root.AddCommand(processCommand(rt), parseCommand(rt))
	return root
}

func processCommand(rt *runtime) *cobra.Command {
	var (
		output    string
		format    string
		task      string
		model     string
		chunkSize int
		patterns  []string
		excludes  []string
		recursive bool
		unified   bool
	)

	cmd := &cobra.Command{
		Use:   "process <path>",
		Short: "Process a file or every document in a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := processor.Options{Task: task, Model: model, ChunkSize: chunkSize}
			if format != "" {
				f, err := llm.ParseFormat(format)
				if err != nil {
					return err
				}
				opts.Format = f
			}

			a, err := app.NewFromConfig(&rt.cfg, rt.log)
			if err != nil {
				return err
			}
			a.SetOutputPath(output)

			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if info.IsDir() {
				folder := parser.FolderOptions{
					Patterns:  patterns,
					Exclude:   excludes,
					Recursive: recursive,
				}
				if unified {
					_, _, err := a.ProcessFolderUnified(ctx, args[0], folder, opts)
					logPartial(rt, err)
					return err
				}
				report, err := a.ProcessFolder(ctx, args[0], folder, opts)
				if err != nil {
					return err
				}
				if len(report.Failed) > 0 {
					return fmt.Errorf("%d document(s) failed", len(report.Failed))
				}
				return nil
			}

			_, err = a.ProcessFile(ctx, args[0], opts)
			logPartial(rt, err)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Save results to this file (folder mode: directory)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: structured_json, markdown or summary")
	cmd.Flags().StringVarP(&task, "task", "t", "", "Task description sent to the model")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Usable token budget override")
	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "Glob of files to include in folder mode (repeatable)")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "Glob of files or folders to skip in folder mode (repeatable)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subfolders in folder mode")
	cmd.Flags().BoolVarP(&unified, "unified", "u", false, "Merge a folder into one document and process it as a whole")
	return cmd
}

func logPartial(rt *runtime, err error) {
	var cerr *processor.ChunkRequestError
	if errors.As(err, &cerr) && len(cerr.Partial) > 0 {
		rt.log.Error("stopped early; rerun to resume", "completed_chunks", len(cerr.Partial), "failed_chunk", cerr.Index+1)
	}
}

func parseCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <path>",
		Short: "Print the unified document for a file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app.New(&rt.cfg, nil, rt.log)
			doc, err := a.Parse(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
}
