package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/keshon/server-otaku/internal/storage"
	v "github.com/keshon/server-otaku/internal/version"
	"github.com/spf13/cobra"
)

// app carries the persistent flags shared by every subcommand.
type app struct {
	dbPath  string
	guildID string
	jsonOut bool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "otaku",
		Short: "Operator tools for " + v.AppName,
		Long: `otaku inspects and edits the bot's database while the bot runs or is stopped.

Examples:
  otaku leaderboard --guild 123456789
  otaku warnings reset --guild 123456789 --user 987654321`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional for the CLI
			_ = godotenv.Load()
			if !cmd.Flags().Changed("db") {
				if p := os.Getenv("STORAGE_PATH"); p != "" {
					a.dbPath = p
				}
			}
		},
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", "data/bot.db", "sqlite database (default from STORAGE_PATH)")
	root.PersistentFlags().StringVarP(&a.guildID, "guild", "g", "", "guild ID")
	root.PersistentFlags().BoolVarP(&a.jsonOut, "json", "j", false, "output as JSON")

	root.AddCommand(
		newLeaderboardCmd(a),
		newWarningsCmd(a),
		newHistoryCmd(a),
		newConfigCmd(),
	)
	return root
}

func (a *app) open() (*storage.Storage, error) {
	store, err := storage.New(a.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", a.dbPath, err)
	}
	return store, nil
}

func (a *app) requireGuild() error {
	if a.guildID == "" {
		return fmt.Errorf("--guild is required")
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
