// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-fido2-server.
//
// go-fido2-server is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// credentialsCmd represents the credentials command
var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage registered credentials",
	Long:  `Commands for inspecting and removing credentials in the store`,
}

// credentialsListCmd lists stored credentials
var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered credentials",
	Long:  `Display all credentials in the configured credential store`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig().LoadServerConfig()
		if err != nil {
			return err
		}

		store, closeStore, err := CreateStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()

		printVerbose("Listing credentials from %s store", cfg.Storage.Backend)

		summaries, err := store.ListAll(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list credentials: %w", err)
		}

		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		return printer.PrintCredentialList(summaries)
	},
}

// credentialsDeleteCmd deletes a credential by ID
var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a credential by its ID",
	Long: `Remove a credential from the store. The ID is the numeric identifier
shown by the list command.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid credential id %q", args[0])
		}

		cfg, err := getConfig().LoadServerConfig()
		if err != nil {
			return err
		}

		store, closeStore, err := CreateStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()

		deleted, err := store.DeleteByID(context.Background(), id)
		if err != nil {
			return fmt.Errorf("failed to delete credential: %w", err)
		}
		if !deleted {
			return fmt.Errorf("credential %d not found", id)
		}

		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		return printer.PrintSuccess(fmt.Sprintf("Credential %d deleted", id))
	},
}

func init() {
	credentialsCmd.AddCommand(credentialsListCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
}
