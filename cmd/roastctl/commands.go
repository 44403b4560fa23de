package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"roast-machine/internal/models"
	"roast-machine/internal/store"

	"github.com/spf13/cobra"
)

func (c *cli) generateCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and save new jokes",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := c.app.Generator()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i := 0; i < count; i++ {
				res, err := gen.Generate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n  id: %s\n  style: %s\n  outcome: %s (%d attempts)\n  link: %s\n",
					res.Joke.Text, res.Joke.ID, res.Joke.Style, res.Outcome, res.Attempts,
					c.app.Share.Permalink(res.Joke.ID),
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of jokes to generate")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var (
		style  string
		page   int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved jokes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.app.Store.Page(store.PageQuery{
				Style:   style,
				Page:    page,
				PerPage: c.app.Config.Store.PerPage,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), p)
			}
			printPage(cmd.OutOrStdout(), p)
			return nil
		},
	}

	cmd.Flags().StringVarP(&style, "style", "s", "", "only jokes of this technique")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printPage(w io.Writer, p store.Page) {
	for _, j := range p.Jokes {
		fmt.Fprintf(w, "%s  %-16s %s\n", j.ID, j.Style, j.Text)
	}
	fmt.Fprintf(w, "page %d of %d, %d jokes", p.Number, p.TotalPages, p.Count)
	if p.Style != "" {
		fmt.Fprintf(w, " (%s, of %d total)", p.Style, p.TotalAll)
	}
	fmt.Fprintln(w)
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print a joke record, falling back to the GitHub repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := c.app.Share.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJoke(cmd.OutOrStdout(), j)
			return nil
		},
	}
}

func printJoke(w io.Writer, j models.Joke) {
	if j.Markdown != "" {
		fmt.Fprint(w, j.Markdown)
		return
	}
	fmt.Fprint(w, store.Render(j.Text, j.Factoid, j.Style))
}

func (c *cli) shareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share ID",
		Short: "Commit a joke to the GitHub repository and print its permalink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := c.app.Share.Share(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show joke counts per technique",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.app.Store.Stats()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total: %d\n", st.Total)

			styles := make([]string, 0, len(st.ByStyle))
			for s := range st.ByStyle {
				styles = append(styles, s)
			}
			sort.Strings(styles)
			for _, s := range styles {
				fmt.Fprintf(out, "  %-16s %d\n", s, st.ByStyle[s])
			}

			if c.app.Jokes != nil {
				archived, err := c.app.Jokes.Count(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to count archived jokes: %w", err)
				}
				fmt.Fprintf(out, "archived: %d\n", archived)
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
