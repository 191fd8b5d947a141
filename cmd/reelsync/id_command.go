package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mmcdole/reelsync/internal/identity"
)

func newIDCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "id",
		Short: "Convert between title keys and catalog identifiers",
	}
	cmd.AddCommand(newIDEncodeCommand())
	cmd.AddCommand(newIDDecodeCommand())
	cmd.AddCommand(newIDHashCommand())
	cmd.AddCommand(newIDParseCommand())
	return cmd
}

func newIDEncodeCommand() *cobra.Command {
	var exact bool
	cmd := &cobra.Command{
		Use:   "encode <key>",
		Short: "Pack a title key into an identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := identity.ParseCanonical(args[0])
			if err != nil {
				return err
			}
			if exact {
				id, err := identity.EncodeExact(key)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), identity.Encode(key))
			if !identity.Fits(key) {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: key truncated, the identifier will not decode back")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&exact, "exact", false, "Fail instead of truncating long keys")
	return cmd
}

func newIDDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <identifier>",
		Short: "Unpack an identifier produced by encode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", identity.ErrMalformedIdentifier, err)
			}
			key, err := identity.Decode(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func newIDHashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <key>",
		Short: "Digest a title key into a stable, irreversible identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := identity.ParseCanonical(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), identity.Hash(key))
			return nil
		},
	}
}

func newIDParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <key|identifier>",
		Short: "Show every form of a title key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := identity.Resolve(args[0])
			if err != nil {
				return err
			}
			rows := [][]string{
				{"kind", string(key.Kind)},
				{"external id", key.ExternalID},
				{"stream id", key.StreamID},
				{"canonical", identity.FormatCanonical(key)},
				{"compact", identity.FormatCompact(key)},
				{"encoded", identity.Encode(key).String()},
				{"reversible", fmt.Sprintf("%t", identity.Fits(key))},
				{"hash", identity.Hash(key).String()},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}
