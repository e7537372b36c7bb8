package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/keshon/server-otaku/internal/config"
	"github.com/keshon/server-otaku/internal/leveling"
	"github.com/keshon/server-otaku/internal/storage"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newLeaderboardCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the members with the most experience",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireGuild(); err != nil {
				return err
			}
			store, err := a.open()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := leveling.New(store, 0, 0).Leaderboard(cmd.Context(), a.guildID, limit)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nobody has earned experience yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tUSER\tLEVEL\tXP")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", e.Position, e.UserID, e.Level, humanize.Comma(e.XP))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of members")
	return cmd
}

func newWarningsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warnings",
		Short: "Inspect or reset member warnings",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List warned members of a guild",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireGuild(); err != nil {
				return err
			}
			store, err := a.open()
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.SummarizeWarnings(cmd.Context(), a.guildID)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd, lo.Ternary(list == nil, []storage.WarningSummary{}, list))
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No warnings.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tCOUNT\tLAST REASON\tLAST")
			for _, s := range list {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.UserID, s.Count, s.LastReason, humanize.Time(s.LastAt))
			}
			return w.Flush()
		},
	}

	var userID string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete all warnings of a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireGuild(); err != nil {
				return err
			}
			store, err := a.open()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.ResetWarnings(cmd.Context(), a.guildID, userID)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd, map[string]int64{"removed": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d warning(s) of %s.\n", n, userID)
			return nil
		},
	}
	reset.Flags().StringVarP(&userID, "user", "u", "", "user ID")
	_ = reset.MarkFlagRequired("user")

	cmd.AddCommand(list, reset)
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently used commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireGuild(); err != nil {
				return err
			}
			store, err := a.open()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.FetchCommandHistory(cmd.Context(), a.guildID, limit)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd, lo.Ternary(records == nil, []storage.CommandHistoryRecord{}, records))
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No commands recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tUSER\tCHANNEL\tCOMMAND")
			for _, r := range records {
				line := strings.TrimSpace(r.Command + " " + r.Param)
				fmt.Fprintf(w, "%s\t%s\t#%s\t%s\n", humanize.Time(r.Datetime), r.Username, r.ChannelName, line)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load the environment and report configuration problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration OK")
			fmt.Fprintf(out, "  storage:   %s\n", cfg.StoragePath)
			fmt.Fprintf(out, "  log file:  %s\n", lo.CoalesceOrEmpty(cfg.LogFile, "(stderr only)"))
			fmt.Fprintf(out, "  dashboard: %s\n", lo.CoalesceOrEmpty(cfg.DashboardAddr, "(disabled)"))
			fmt.Fprintf(out, "  xp:        %d per message, %s cooldown\n", cfg.XPPerMessage, cfg.XPCooldown)
			fmt.Fprintf(out, "  warnings:  mute after %d for %s\n", cfg.WarningLimit, cfg.WarningMuteDuration)
			fmt.Fprintf(out, "  spam:      %d messages per %s\n", cfg.SpamThreshold, cfg.SpamWindow)
			return nil
		},
	})
	return cmd
}
