package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/supervity/company-research/internal/sections"
	"github.com/supervity/company-research/internal/storage"
	"github.com/supervity/company-research/internal/summary"
)

var showCmd = &cobra.Command{
	Use:   "show <section-id>",
	Short: "Print a stored section in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var (
	showCompany  string
	showLanguage string
	showRaw      bool
	showWidth    int
	showStyle    string
)

func init() {
	f := showCmd.Flags()
	f.StringVarP(&showCompany, "company", "c", "", "Target company (required)")
	f.StringVarP(&showLanguage, "language", "l", "", "Report language (default from config)")
	f.BoolVar(&showRaw, "raw", false, "Print the markdown without rendering")
	f.IntVar(&showWidth, "width", 100, "Word wrap width")
	f.StringVar(&showStyle, "style", "", "Glamour style (dark, light, notty, ...); detected from the terminal when empty")
	_ = showCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(showCmd)
}

// renderStyle picks the glamour style for w. An empty result means auto-detect,
// which only works on a terminal; anything else (pipes, files, tests) gets dark.
func renderStyle(w io.Writer, flag string) string {
	if flag != "" {
		return flag
	}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return ""
	}
	return "dark"
}

// renderMarkdown styles markdown for the terminal.
func renderMarkdown(text string, width int, style string) (string, error) {
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(
		styleOpt,
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return r.Render(text)
}

func runShow(cmd *cobra.Command, args []string) error {
	sectionID := args[0]
	if _, ok := sections.Default().Lookup(sectionID); !ok && sectionID != summary.SectionID {
		return fmt.Errorf("unknown section %q", sectionID)
	}
	language := appCfg.Language
	if showLanguage != "" {
		language = showLanguage
	}
	lang, err := sections.ParseLanguage(language)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStores(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	text, err := st.store.Read(ctx, storage.Key{Company: showCompany, Language: string(lang), SectionID: sectionID})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no stored %s section for %s (%s)", sectionID, showCompany, lang)
		}
		return err
	}
	text = summary.StripFrontMatter(text)

	out := text
	if !showRaw {
		style := renderStyle(cmd.OutOrStdout(), showStyle)
		if out, err = renderMarkdown(text, showWidth, style); err != nil {
			return err
		}
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}
