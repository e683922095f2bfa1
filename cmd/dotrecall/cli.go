package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "dotrecall",
		Short: "Durable conversation memory: incremental sync, recall, and legacy migration",
		Long: strings.TrimSpace(`dotrecall mirrors conversation transcripts into an external long-term
memory store, incrementally and exactly once, and pulls synthesized
knowledge back into local files.

Use CLI commands to onboard, inspect sync state, ask the memory store
questions, sync transcripts, migrate legacy memory files, and run the
live gateway.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newAskCommand())
	root.AddCommand(newSearchCommand())
	root.AddCommand(newSyncCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newExportCommand())
	root.AddCommand(newGatewayCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.dotrecall config and workspace",
		Example: "  dotrecall onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return onboard()
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration readiness and recent sync runs",
		Example: "  dotrecall status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusCmd()
		},
	}
}

func newAskCommand() *cobra.Command {
	var (
		message    string
		synthesize bool
	)

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask the memory store a question about the owner",
		Long:  "Answer a question from stored memory. Without --message, drops into an interactive prompt.",
		Example: strings.Join([]string{
			"  dotrecall ask",
			"  dotrecall ask --message \"what timezone am I in?\"",
			"  dotrecall ask --message \"summarize my projects\" --synthesize",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return askCmd(message, synthesize)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot question to ask")
	cmd.Flags().BoolVar(&synthesize, "synthesize", false, "Use deeper reasoning over stored memory")
	return cmd
}

func newSearchCommand() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:     "search <query>",
		Short:   "Semantic search over stored memory",
		Args:    cobra.MinimumNArgs(1),
		Example: "  dotrecall search \"favorite editor\" --top-k 5",
		RunE: func(cmd *cobra.Command, args []string) error {
			return searchCmd(strings.Join(args, " "), topK)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 10, "Maximum number of results")
	return cmd
}

func newSyncCommand() *cobra.Command {
	var (
		session string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync a transcript file to the memory store",
		Long:  "Run one incremental sync pass over a JSON transcript (an array of {role, content} turns).",
		Example: strings.Join([]string{
			"  dotrecall sync --session cli:main --file transcript.json",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(file) == "" {
				return fmt.Errorf("--file is required")
			}
			return syncCmd(session, file)
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "cli:main", "Thread key for the transcript")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the JSON transcript")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "migrate",
		Short:   "Migrate legacy memory files into the store and archive them",
		Long:    "Submit legacy knowledge files (MEMORY.md, USER.md, IDENTITY.md, memory/) as facts, then move the originals to the archive directory. Files are left in place if any submission fails.",
		Example: "  dotrecall migrate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrateCmd()
		},
	}
}

func newExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "export",
		Short:   "Export synthesized knowledge to the local knowledge file now",
		Example: "  dotrecall export",
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportCmd()
		},
	}
}

func newGatewayCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "gateway",
		Short:   "Run the live sync gateway (channels + sync engine + exporter)",
		Example: "  dotrecall gateway --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			return gatewayCmd(debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  dotrecall version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}
