package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metcalfc/epub2md/internal/book"
	"github.com/metcalfc/epub2md/internal/boundary"
)

func newInspectCmd() *cobra.Command {
	var fallback string
	var minSpacing int

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the chapter windows a book would convert into",
		Long: `Inspect opens one EPUB and prints its metadata, TOC health, and the
planned chapter windows without writing any output. Useful for checking
whether the heading fallback would trigger before converting a library.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := boundary.ParsePolicy(fallback)
			if err != nil {
				return err
			}

			b, err := book.Open(args[0])
			if err != nil {
				return err
			}
			defer b.Close()

			meta := b.Metadata()
			spine := b.Spine()
			toc := b.TOC()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Title:    %s\n", meta.Title)
			if len(meta.Creators) > 0 {
				fmt.Fprintf(out, "Author:   %s\n", meta.Creators[0])
			}
			fmt.Fprintf(out, "Spine:    %d documents\n", len(spine))
			fmt.Fprintf(out, "TOC:      %d entries\n", len(toc))

			planner := &boundary.Planner{
				Policy:       policy,
				MinSpacing:   minSpacing,
				LoadDocument: b.LoadDocument,
			}
			windows, err := planner.Plan(toc, spine)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Chapters: %d\n\n", len(windows))
			for i, w := range windows {
				loc := w.Start.Href
				if w.Start.Fragment != "" {
					loc += "#" + w.Start.Fragment
				}
				fmt.Fprintf(out, "%3d. %-40s %s\n", i+1, w.Label, loc)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fallback, "chapter-fallback", "auto", "heading fallback policy: off, auto, or force")
	cmd.Flags().IntVar(&minSpacing, "fallback-min-spacing", 2, "minimum spine documents between fallback chapter starts")

	return cmd
}
