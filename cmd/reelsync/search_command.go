package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mmcdole/reelsync/internal/search"
	"github.com/mmcdole/reelsync/internal/tui/styles"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		localFlag  bool
		kindFlag   string
		insertFlag int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the addon, or the local catalog with --local",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKinds(kindFlag)
			if err != nil {
				return err
			}
			if localFlag && insertFlag > 0 {
				return fmt.Errorf("--insert only applies to addon results")
			}
			return ctx.withApp(func(a *app) error {
				if localFlag {
					results, err := a.search.FilterLocal(cmd.Context(), args[0], kinds...)
					if err != nil {
						return err
					}
					printLocalResults(cmd, results)
					return nil
				}

				results, err := a.search.SearchRemote(cmd.Context(), args[0], kinds...)
				if err != nil {
					return err
				}
				if insertFlag == 0 {
					printRemoteResults(cmd, results)
					return nil
				}
				if insertFlag > len(results) {
					return fmt.Errorf("--insert %d: only %d results", insertFlag, len(results))
				}
				picked := results[insertFlag-1]
				entry, created, err := a.search.Insert(cmd.Context(), picked.ID)
				if err != nil {
					return err
				}
				msg := fmt.Sprintf("%s already in catalog", entry.DisplayTitle())
				if created {
					msg = fmt.Sprintf("imported %s", entry.DisplayTitle())
				}
				fmt.Fprintln(cmd.OutOrStdout(), styles.Success(msg))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&localFlag, "local", false, "Filter titles already in the catalog")
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Restrict to movie or series")
	cmd.Flags().IntVar(&insertFlag, "insert", 0, "Import the Nth addon result")
	return cmd
}

func printLocalResults(cmd *cobra.Command, results []search.LocalResult) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, styles.DimStyle.Render("no matches"))
		return
	}
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			styles.HighlightMatches(r.Entry.DisplayTitle(), r.MatchedIndexes),
			r.Entry.Kind.String(),
			strconv.Itoa(len(r.Entry.AlternateVersionIDs)),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Title", "Kind", "Versions"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
	))
}

func printRemoteResults(cmd *cobra.Command, results []search.Result) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, styles.DimStyle.Render("no results"))
		return
	}
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			styles.Truncate(r.Meta.Name, 48),
			yearString(r.Meta.Year),
			string(r.Key.Kind),
			r.Key.String(),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Title", "Year", "Kind", "Key"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
	))
}
