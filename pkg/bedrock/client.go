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

// Package bedrock invokes the Bedrock Converse API, unary and streaming,
// with bounded retries and typed failures.
package bedrock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/internal/log"
)

// Retry policy: at most maxRetries extra attempts on throttled/unavailable,
// exponential backoff with full jitter.
const (
	maxRetries     = 2
	baseBackoff    = 250 * time.Millisecond
	backoffFactor  = 2
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the upstream client.
type Config struct {
	Region          string
	AccessKeyID     string // Optional: if not using IAM role/profile
	SecretAccessKey string // Optional: if not using IAM role/profile
	SessionToken    string // Optional: for temporary credentials
	Profile         string // Optional: AWS profile name from ~/.aws/config

	// Timeout bounds each unary invocation. Zero means DefaultTimeout.
	Timeout time.Duration
}

// converseAPI is the slice of bedrockruntime.Client the Client uses.
// Narrowed for stubbing in tests.
type converseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, in *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Stream is one open ConverseStream. Events terminates on upstream EOF;
// Err reports how the stream ended.
type Stream interface {
	Events() <-chan bedrocktypes.ConverseStreamOutput
	Err() error
	Close() error
}

// Client invokes the Converse API.
type Client struct {
	api     converseAPI
	timeout time.Duration
	sleep   func(context.Context, time.Duration) error
}

// NewClient creates a Bedrock client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	// Build AWS config
	var awsCfg aws.Config
	var err error

	// Option 1: Explicit credentials provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			)),
		)
	} else if cfg.Profile != "" {
		// Option 2: Use named profile
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithSharedConfigProfile(cfg.Profile),
		)
	} else {
		// Option 3: Use default credentials chain (IAM role, env vars, profile)
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		api:     bedrockruntime.NewFromConfig(awsCfg),
		timeout: timeout,
		sleep:   sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff returns the full-jitter delay for the given attempt (0-based).
func backoff(attempt int) time.Duration {
	max := baseBackoff
	for i := 0; i < attempt; i++ {
		max *= backoffFactor
	}
	return time.Duration(rand.Int64N(int64(max) + 1))
}

// Invoke performs one unary Converse call with retries.
func (c *Client) Invoke(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := c.api.Converse(ctx, in)
		if err == nil {
			return out, nil
		}
		classified := classify(err)
		lastErr = classified
		if attempt >= maxRetries || !retryable(classified) {
			return nil, lastErr
		}
		delay := backoff(attempt)
		log.Warn("retrying upstream converse call",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.String("kind", string(classified.Kind)))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, lastErr
		}
	}
}

// InvokeStream opens a ConverseStream. Connection establishment is retried;
// once any event has been delivered the stream is never retried and errors
// surface through Stream.Err.
func (c *Client) InvokeStream(ctx context.Context, in *bedrockruntime.ConverseInput) (Stream, error) {
	streamIn := &bedrockruntime.ConverseStreamInput{
		ModelId:                      in.ModelId,
		Messages:                     in.Messages,
		System:                       in.System,
		InferenceConfig:              in.InferenceConfig,
		ToolConfig:                   in.ToolConfig,
		AdditionalModelRequestFields: in.AdditionalModelRequestFields,
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := c.api.ConverseStream(ctx, streamIn)
		if err == nil {
			return &sdkStream{es: out.GetStream()}, nil
		}
		classified := classify(err)
		lastErr = classified
		if attempt >= maxRetries || !retryable(classified) {
			return nil, lastErr
		}
		delay := backoff(attempt)
		log.Warn("retrying upstream converse stream open",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.String("kind", string(classified.Kind)))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, lastErr
		}
	}
}

type sdkStream struct {
	es *bedrockruntime.ConverseStreamEventStream
}

func (s *sdkStream) Events() <-chan bedrocktypes.ConverseStreamOutput {
	return s.es.Events()
}

func (s *sdkStream) Err() error {
	if err := s.es.Err(); err != nil {
		return classify(err)
	}
	return nil
}

func (s *sdkStream) Close() error {
	return s.es.Close()
}
