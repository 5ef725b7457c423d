package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/examprep/practice-api/internal/freetrial"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and replace the free trial policy",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the active policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			p, err := b.trial.ActivePolicy(ctx)
			if errors.Is(err, freetrial.ErrNoActivePolicy) {
				fmt.Fprintln(cmd.OutOrStdout(), "No active policy; the free trial quota is disabled.")
				return nil
			}
			if err != nil {
				return err
			}
			printPolicy(cmd, p)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Replace the active policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("daily-limit")
			raw, _ := cmd.Flags().GetString("categories")
			categories, err := parseCategories(raw)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("categories") {
				return fmt.Errorf("--categories is required; pass \"\" to meter no category")
			}

			ctx := context.Background()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			p, err := b.trial.ReplacePolicy(ctx, actor(cmd), limit, categories)
			if err != nil {
				return err
			}
			printPolicy(cmd, p)
			return nil
		},
	}
	set.Flags().Int("daily-limit", 0, "Units a user may consume per day")
	set.Flags().String("categories", "", "Comma-separated category ids the free trial covers, empty for none")

	history := &cobra.Command{
		Use:   "history",
		Short: "List current and retired policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			ctx := context.Background()
			b, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			policies, total, err := b.trial.ListPolicies(ctx, limit, 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-36s  %-6s  %-6s  %-19s  %s\n", "ID", "Limit", "Active", "Created", "Categories")
			fmt.Fprintln(out, strings.Repeat("─", 100))
			for _, p := range policies {
				fmt.Fprintf(out, "%-36s  %-6d  %-6t  %-19s  %s\n",
					p.ID, p.DailyLimit, p.Active, p.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					formatCategories(p.AllowedCategories))
			}
			fmt.Fprintf(out, "%d of %d policies\n", len(policies), total)
			return nil
		},
	}
	history.Flags().Int("limit", 20, "Maximum number of policies to list")

	cmd.AddCommand(show, set, history)
	return cmd
}

func printPolicy(cmd *cobra.Command, p *freetrial.Policy) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Policy:      %s\n", p.ID)
	fmt.Fprintf(out, "Daily limit: %d\n", p.DailyLimit)
	fmt.Fprintf(out, "Categories:  %s\n", formatCategories(p.AllowedCategories))
	fmt.Fprintf(out, "Updated:     %s\n", p.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
}

func parseCategories(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid category id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatCategories(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
