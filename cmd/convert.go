package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/metcalfc/epub2md/internal/boundary"
	"github.com/metcalfc/epub2md/internal/config"
	"github.com/metcalfc/epub2md/internal/convert"
	"github.com/metcalfc/epub2md/internal/render"
)

func newConvertCmd() *cobra.Command {
	var (
		cfgPath string
		cfg     = config.Default()
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert every EPUB under the input directory to Markdown",
		Example: `  # Convert ./books into ./out, one markdown file per book
  epub2md convert --input-dir ./books --output-dir ./out

  # Rich markdown with external stylesheets, one file per chapter
  epub2md convert --mode rich --style external --split-chapters`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved := config.Default()
			if err := resolved.ApplyEnv(); err != nil {
				return err
			}
			if cfgPath != "" {
				if err := resolved.ApplyFile(cfgPath); err != nil {
					return err
				}
			}

			// Flags the user set beat the file and the environment.
			f := cmd.Flags()
			if f.Changed("input-dir") {
				resolved.InputDir = cfg.InputDir
			}
			if f.Changed("output-dir") {
				resolved.OutputDir = cfg.OutputDir
			}
			if f.Changed("mode") {
				resolved.Mode = cfg.Mode
			}
			if f.Changed("style") {
				resolved.Style = cfg.Style
			}
			if f.Changed("media-all") {
				resolved.MediaAll = cfg.MediaAll
			}
			if f.Changed("split-chapters") {
				resolved.SplitChapters = cfg.SplitChapters
			}
			if f.Changed("chapter-fallback") {
				resolved.ChapterFallback = cfg.ChapterFallback
			}
			if f.Changed("fallback-min-spacing") {
				resolved.FallbackMinSpacing = cfg.FallbackMinSpacing
			}

			opts, err := buildOptions(resolved, force)
			if err != nil {
				return err
			}
			return convert.ConvertAll(opts)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "YAML config file supplying option defaults")
	cmd.Flags().StringVarP(&cfg.InputDir, "input-dir", "i", cfg.InputDir, "directory scanned for .epub files")
	cmd.Flags().StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir, "directory for markdown output")
	cmd.Flags().StringVar(&cfg.Mode, "mode", cfg.Mode, "markdown mode: plain or rich")
	cmd.Flags().StringVar(&cfg.Style, "style", cfg.Style, "rich-mode stylesheet handling: inline or external")
	cmd.Flags().BoolVar(&cfg.MediaAll, "media-all", cfg.MediaAll, "extract every manifest image, referenced or not")
	cmd.Flags().BoolVar(&cfg.SplitChapters, "split-chapters", cfg.SplitChapters, "write one numbered file per chapter")
	cmd.Flags().StringVar(&cfg.ChapterFallback, "chapter-fallback", cfg.ChapterFallback, "heading fallback policy: off, auto, or force")
	cmd.Flags().IntVar(&cfg.FallbackMinSpacing, "fallback-min-spacing", cfg.FallbackMinSpacing, "minimum spine documents between fallback chapter starts")
	cmd.Flags().BoolVar(&force, "force", false, "reconvert books whose source is unchanged")

	return cmd
}

// buildOptions validates the resolved config and maps it onto conversion
// options.
func buildOptions(cfg config.Config, force bool) (convert.Options, error) {
	mode, err := render.ParseMode(cfg.Mode)
	if err != nil {
		return convert.Options{}, err
	}
	style, err := convert.ParseStyle(cfg.Style)
	if err != nil {
		return convert.Options{}, err
	}
	policy, err := boundary.ParsePolicy(cfg.ChapterFallback)
	if err != nil {
		return convert.Options{}, err
	}
	return convert.Options{
		InputDir:      cfg.InputDir,
		OutputDir:     cfg.OutputDir,
		Mode:          mode,
		Style:         style,
		MediaAll:      cfg.MediaAll,
		SplitChapters: cfg.SplitChapters,
		Fallback:      policy,
		MinSpacing:    cfg.FallbackMinSpacing,
		Force:         force,
		Logger:        slog.Default(),
	}, nil
}
