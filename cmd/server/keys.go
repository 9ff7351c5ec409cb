package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nutshimit/mashin-registry/internal/auth"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the admin API key",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an admin API key and the bcrypt hash to configure",
	Long: "Generate an admin API key. Only the hash goes into auth.admin_key_hash " +
		"(or MASHIN_AUTH_ADMIN_KEY_HASH); keep the key itself in a secret store.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, hash, err := auth.GenerateAPIKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "key:  %s\n", key)
		fmt.Fprintf(out, "hash: %s\n", hash)
		return nil
	},
}

var keysHashCmd = &cobra.Command{
	Use:   "hash <key>",
	Short: "Print the bcrypt hash of an existing key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashAPIKey(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash key: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	keysCmd.AddCommand(keysGenerateCmd, keysHashCmd)
}
