package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mmcdole/reelsync/internal/domain"
	"github.com/mmcdole/reelsync/internal/identity"
	"github.com/mmcdole/reelsync/internal/library"
	"github.com/mmcdole/reelsync/internal/tui"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var (
		catalogFlag string
		kindFlag    string
		searchFlag  string
		limitFlag   int
		syncFlag    bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import every title of an addon catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := identity.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			opts := library.ImportOptions{
				CatalogID: catalogFlag,
				Kind:      kind,
				Search:    searchFlag,
				Limit:     limitFlag,
				Sync:      syncFlag,
			}
			return ctx.withApp(func(a *app) error {
				run := func(ctx context.Context, onProgress domain.ProgressFunc) (domain.ImportResult, error) {
					return a.library.ImportCatalog(ctx, opts, onProgress)
				}

				if term.IsTerminal(int(os.Stdout.Fd())) {
					_, err := tui.RunImport(cmd.Context(), catalogFlag, run)
					return err
				}

				res, err := run(cmd.Context(), nil)
				fmt.Fprintln(cmd.OutOrStdout(), tui.Summary(res, err))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&catalogFlag, "catalog", "", "Addon catalog id (see the addon manifest)")
	cmd.Flags().StringVar(&kindFlag, "kind", string(identity.KindMovie), "Catalog type: movie or series")
	cmd.Flags().StringVar(&searchFlag, "search", "", "Only import titles matching this search")
	cmd.Flags().IntVar(&limitFlag, "limit", 0, "Stop after this many titles (0 = whole catalog)")
	cmd.Flags().BoolVar(&syncFlag, "sync", false, "Reconcile sources of imported movies immediately")
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}
