// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/relay/pkg/store"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		name, _ := cmd.Flags().GetString("name")
		rateLimit, _ := cmd.Flags().GetInt("rate-limit")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		st, err := buildStore(cmd.Context(), config)
		if err != nil {
			return fmt.Errorf("failed to build store: %w", err)
		}

		rec := store.CreateAPIKey(userID, name, rateLimit)
		if err := st.PutAPIKey(cmd.Context(), rec); err != nil {
			return fmt.Errorf("failed to store api key: %w", err)
		}

		// The key is printed once and never logged.
		fmt.Println(rec.APIKey)
		return nil
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <api-key>",
	Short: "Deactivate an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStore(cmd.Context(), config)
		if err != nil {
			return fmt.Errorf("failed to build store: %w", err)
		}
		if err := st.DeactivateAPIKey(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to deactivate api key: %w", err)
		}
		fmt.Println("deactivated")
		return nil
	},
}

func init() {
	keysCreateCmd.Flags().String("user", "", "user id that owns the key")
	keysCreateCmd.Flags().String("name", "", "human-readable key name")
	keysCreateCmd.Flags().Int("rate-limit", 60, "requests per window for this key")

	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysRevokeCmd)
	rootCmd.AddCommand(keysCmd)
}
