package cmd

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "epub2md",
		Short: "Convert EPUB books into structured Markdown",
		Long: `epub2md converts EPUB files into Markdown, one section per chapter.

Chapter boundaries come from the book's table of contents; books with a
missing or degenerate TOC fall back to heading detection across the spine.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			if verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newConvertCmd())
	cmd.AddCommand(newInspectCmd())

	return cmd
}
