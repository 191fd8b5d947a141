package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mmcdole/reelsync/internal/identity"
	"github.com/mmcdole/reelsync/internal/tui/styles"
)

func newVersionsCommand(ctx *commandContext) *cobra.Command {
	var userFlag string

	cmd := &cobra.Command{
		Use:   "versions <key>",
		Short: "List the alternate versions stored for a title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := identity.Resolve(args[0])
			if err != nil {
				return err
			}
			user, err := parseUser(userFlag)
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				entry, err := a.queries.Lookup(cmd.Context(), key)
				if err != nil {
					return err
				}
				primary, alts, err := a.queries.Versions(cmd.Context(), entry.ID, user)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, styles.TitleStyle.Render(primary.DisplayTitle()))
				if len(alts) == 0 {
					fmt.Fprintln(out, styles.DimStyle.Render("no versions, run `reelsync sync` first"))
					return nil
				}

				rows := make([][]string, 0, len(alts))
				for _, alt := range alts {
					index, users := "-", "0"
					if alt.Stream != nil {
						index = strconv.Itoa(alt.Stream.Index)
						users = strconv.Itoa(len(alt.Stream.Users))
					}
					rows = append(rows, []string{
						index,
						sourceChar(alt.Stream),
						styles.Truncate(alt.Name, 48),
						users,
						styles.Truncate(alt.Path, 64),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"#", "", "Name", "Users", "Path"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "Only show versions visible to this user id")
	return cmd
}
