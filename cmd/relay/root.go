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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/relay/internal/version"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "relay",
	Short:   "Relay - OpenAI-compatible gateway for AWS Bedrock",
	Long:    `Relay exposes an OpenAI Chat Completions API and translates requests to AWS Bedrock Converse, with API-key auth, rate limiting, and usage accounting.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./relay.yaml)")

	// Server flags
	rootCmd.PersistentFlags().Int("port", 8000, "HTTP server port")
	rootCmd.PersistentFlags().String("host", "0.0.0.0", "HTTP server host")

	// AWS flags
	rootCmd.PersistentFlags().String("aws-region", "us-west-2", "AWS region for Bedrock and DynamoDB")
	rootCmd.PersistentFlags().String("aws-profile", "", "AWS profile name from ~/.aws/config")

	// Auth flags
	rootCmd.PersistentFlags().Bool("require-api-key", true, "require an API key on every request")
	rootCmd.PersistentFlags().String("master-api-key", "", "master API key with unlimited rate (or use keyring/env)")

	// Rate limit flags
	rootCmd.PersistentFlags().Bool("rate-limit", true, "enable per-key rate limiting")
	rootCmd.PersistentFlags().Int("rate-limit-requests", 60, "default requests per window when a key record has no rate_limit")
	rootCmd.PersistentFlags().Int("rate-limit-window", 60, "rate limit window in seconds")

	// Feature gates
	rootCmd.PersistentFlags().Bool("vision", true, "enable vision (image) inputs")
	rootCmd.PersistentFlags().Bool("tool-use", true, "enable tool/function calling")
	rootCmd.PersistentFlags().Bool("extended-thinking", true, "enable extended thinking")

	// Store flags
	rootCmd.PersistentFlags().String("store", "dynamodb", "key store backend (dynamodb, memory)")
	rootCmd.PersistentFlags().String("dynamodb-endpoint", "", "DynamoDB endpoint override (for local development)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("server.host", rootCmd.PersistentFlags().Lookup("host"))

	_ = viper.BindPFlag("aws.region", rootCmd.PersistentFlags().Lookup("aws-region"))
	_ = viper.BindPFlag("aws.profile", rootCmd.PersistentFlags().Lookup("aws-profile"))

	_ = viper.BindPFlag("auth.require_api_key", rootCmd.PersistentFlags().Lookup("require-api-key"))
	_ = viper.BindPFlag("auth.master_api_key", rootCmd.PersistentFlags().Lookup("master-api-key"))

	_ = viper.BindPFlag("rate_limit.enabled", rootCmd.PersistentFlags().Lookup("rate-limit"))
	_ = viper.BindPFlag("rate_limit.requests", rootCmd.PersistentFlags().Lookup("rate-limit-requests"))
	_ = viper.BindPFlag("rate_limit.window_seconds", rootCmd.PersistentFlags().Lookup("rate-limit-window"))

	_ = viper.BindPFlag("features.vision", rootCmd.PersistentFlags().Lookup("vision"))
	_ = viper.BindPFlag("features.tool_use", rootCmd.PersistentFlags().Lookup("tool-use"))
	_ = viper.BindPFlag("features.extended_thinking", rootCmd.PersistentFlags().Lookup("extended-thinking"))

	_ = viper.BindPFlag("store.backend", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("store.dynamodb_endpoint", rootCmd.PersistentFlags().Lookup("dynamodb-endpoint"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
