package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmcdole/reelsync/internal/identity"
	"github.com/mmcdole/reelsync/internal/tui/styles"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var userFlag string

	cmd := &cobra.Command{
		Use:   "sync <key>",
		Short: "Import a title if needed and reconcile its sources",
		Long: `Resolve a title key (stremio://movie/tt0111161, stremio://series/tt0944947:1:1,
or an encoded identifier), import it when the catalog does not have it yet and
materialize the addon's current sources as alternate versions.`,
		Args: cobra.ExactArgs(1),
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
				titleID, n, err := a.library.ReconcileKey(cmd.Context(), key, user)
				if err != nil {
					return err
				}
				name := key.ExternalID
				if primary, _, err := a.queries.Versions(cmd.Context(), titleID, user); err == nil {
					name = primary.DisplayTitle()
				}
				out := cmd.OutOrStdout()
				if n == 0 {
					fmt.Fprintln(out, styles.Failure(fmt.Sprintf("%s: no playable sources", name)))
					return nil
				}
				fmt.Fprintln(out, styles.Success(fmt.Sprintf("%s: %d sources", name, n)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "User id the sources are made visible to (default: everyone)")
	return cmd
}
