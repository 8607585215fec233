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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/internal/log"
	"github.com/teradata-labs/relay/internal/version"
	"github.com/teradata-labs/relay/pkg/auth"
	"github.com/teradata-labs/relay/pkg/bedrock"
	"github.com/teradata-labs/relay/pkg/models"
	"github.com/teradata-labs/relay/pkg/ratelimit"
	"github.com/teradata-labs/relay/pkg/server"
	"github.com/teradata-labs/relay/pkg/store"
	"github.com/teradata-labs/relay/pkg/translate"
	"github.com/teradata-labs/relay/pkg/usage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func buildStore(ctx context.Context, cfg *Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		log.Warn("using in-memory store, keys and usage will not persist")
		return store.NewMemoryStore(), nil
	case "dynamodb":
		return store.NewDynamoStore(ctx, store.DynamoConfig{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			SessionToken:    cfg.AWS.SessionToken,
			Profile:         cfg.AWS.Profile,
			Endpoint:        cfg.Store.DynamoDBEndpoint,
			KeysTable:       cfg.Store.KeysTable,
			UsageTable:      cfg.Store.UsageTable,
			MappingTable:    cfg.Store.MappingTable,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func runServe(ctx context.Context) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := log.Setup(config.Logging.Level, config.Logging.Format); err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting relay",
		zap.String("version", version.Get()),
		zap.String("region", config.AWS.Region),
		zap.String("store", config.Store.Backend))

	st, err := buildStore(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to build store: %w", err)
	}

	upstream, err := bedrock.NewClient(ctx, bedrock.Config{
		Region:          config.AWS.Region,
		AccessKeyID:     config.AWS.AccessKeyID,
		SecretAccessKey: config.AWS.SecretAccessKey,
		SessionToken:    config.AWS.SessionToken,
		Profile:         config.AWS.Profile,
		Timeout:         time.Duration(config.AWS.UpstreamTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to build bedrock client: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		Enabled:         config.RateLimit.Enabled,
		DefaultCapacity: config.RateLimit.Requests,
		Window:          time.Duration(config.RateLimit.WindowSeconds) * time.Second,
	})
	defer limiter.Close()

	srv := server.New(
		server.Config{
			Addr: fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
			CORS: server.CORSConfig{
				Enabled:          config.Server.CORS.Enabled,
				AllowedOrigins:   config.Server.CORS.AllowedOrigins,
				AllowedMethods:   config.Server.CORS.AllowedMethods,
				AllowedHeaders:   config.Server.CORS.AllowedHeaders,
				ExposedHeaders:   config.Server.CORS.ExposedHeaders,
				AllowCredentials: config.Server.CORS.AllowCredentials,
				MaxAge:           config.Server.CORS.MaxAge,
			},
			UnaryTimeout:  time.Duration(config.Server.UnaryTimeoutSeconds) * time.Second,
			StreamTimeout: time.Duration(config.Server.StreamTimeoutSeconds) * time.Second,
			Translate: translate.Options{
				EnableVision:   config.Features.Vision,
				EnableToolUse:  config.Features.ToolUse,
				EnableThinking: config.Features.ExtendedThinking,
				Fetcher:        translate.NewHTTPImageFetcher(),
			},
		},
		auth.New(auth.Config{
			RequireAPIKey: config.Auth.RequireAPIKey,
			MasterAPIKey:  config.Auth.MasterAPIKey,
		}, st),
		limiter,
		models.NewResolver(st),
		upstream,
		usage.NewRecorder(st),
		st,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	}
}
