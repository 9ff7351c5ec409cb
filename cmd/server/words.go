package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nutshimit/mashin-registry/internal/db"
	"github.com/nutshimit/mashin-registry/internal/db/repositories"
	"github.com/nutshimit/mashin-registry/internal/jobs"
)

var wordsCmd = &cobra.Command{
	Use:   "words",
	Short: "Manage the forbidden module name list",
}

var wordsSyncCmd = &cobra.Command{
	Use:   "sync [file]",
	Short: "Replace the stored forbidden word list with a file",
	Long: "Replace the stored forbidden word list with a file: one word per line, " +
		"# starts a comment. Defaults to registry.forbidden_words_file.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfigDatabase(func(path string, database *sql.DB) error {
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no word list given and registry.forbidden_words_file is not set")
			}

			words := repositories.NewForbiddenWordRepository(db.Wrap(database))
			n, err := jobs.SyncWordList(context.Background(), words, path)
			if err != nil {
				return err
			}
			slog.Info("forbidden word list synced", "path", path, "words", n)
			fmt.Fprintf(cmd.OutOrStdout(), "%d forbidden words loaded from %s\n", n, path)
			return nil
		})
	},
}

func init() {
	wordsCmd.AddCommand(wordsSyncCmd)
}
