package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRetakeLimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retake-limit",
		Short: "Manage per-user retake ceilings",
	}

	get := &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show a user's retake ceiling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			view, err := b.retk.GetLimit(ctx, args[0])
			if err != nil {
				return err
			}
			if view.IsUnlimited {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: unlimited\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d retakes\n", args[0], view.MaxRetakes)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <user-id> <max-retakes>",
		Short: "Set a user's retake ceiling (-1 for unlimited)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var maxRetakes int
			if _, err := fmt.Sscan(args[1], &maxRetakes); err != nil {
				return fmt.Errorf("invalid max retakes %q", args[1])
			}

			ctx := context.Background()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			l, err := b.retk.SetLimit(ctx, actor(cmd), args[0], maxRetakes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: max retakes set to %d\n", l.UserID, l.MaxRetakes)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <user-id>",
		Short: "Remove a user's override, making them unlimited",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.retk.ClearLimit(ctx, actor(cmd), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: override cleared\n", args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List retake overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			ctx := context.Background()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			limits, total, err := b.retk.ListLimits(ctx, limit, 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-32s  %-8s  %-16s  %s\n", "User", "Max", "Updated by", "Updated")
			fmt.Fprintln(out, strings.Repeat("─", 80))
			for _, l := range limits {
				fmt.Fprintf(out, "%-32s  %-8d  %-16s  %s\n",
					l.UserID, l.MaxRetakes, l.UpdatedBy, l.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(out, "%d of %d overrides\n", len(limits), total)
			return nil
		},
	}
	list.Flags().Int("limit", 50, "Maximum number of overrides to list")

	cmd.AddCommand(get, set, clearCmd, list)
	return cmd
}
