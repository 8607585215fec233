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
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamotypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/internal/log"
)

// Default table names. Overridable through DynamoConfig.
const (
	DefaultKeysTable    = "relay-api-keys"
	DefaultUsageTable   = "relay-usage"
	DefaultMappingTable = "relay-model-mapping"
)

// DynamoConfig holds configuration for the DynamoDB-backed store.
type DynamoConfig struct {
	Region          string
	AccessKeyID     string // Optional: if not using IAM role/profile
	SecretAccessKey string // Optional: if not using IAM role/profile
	SessionToken    string // Optional: for temporary credentials
	Profile         string // Optional: AWS profile name from ~/.aws/config
	Endpoint        string // Optional: local DynamoDB endpoint override

	KeysTable    string
	UsageTable   string
	MappingTable string
}

// DynamoStore implements Store on DynamoDB.
type DynamoStore struct {
	client       *dynamodb.Client
	keysTable    string
	usageTable   string
	mappingTable string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoDB-backed store.
func NewDynamoStore(ctx context.Context, cfg DynamoConfig) (*DynamoStore, error) {
	if cfg.KeysTable == "" {
		cfg.KeysTable = DefaultKeysTable
	}
	if cfg.UsageTable == "" {
		cfg.UsageTable = DefaultUsageTable
	}
	if cfg.MappingTable == "" {
		cfg.MappingTable = DefaultMappingTable
	}

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

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	log.Debug("dynamodb store initialized",
		zap.String("region", cfg.Region),
		zap.String("keys_table", cfg.KeysTable),
		zap.String("usage_table", cfg.UsageTable),
		zap.String("mapping_table", cfg.MappingTable))

	return &DynamoStore{
		client:       client,
		keysTable:    cfg.KeysTable,
		usageTable:   cfg.UsageTable,
		mappingTable: cfg.MappingTable,
	}, nil
}

// GetAPIKey implements Store.
func (s *DynamoStore) GetAPIKey(ctx context.Context, key string) (*APIKeyRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.keysTable),
		Key: map[string]dynamotypes.AttributeValue{
			"api_key": &dynamotypes.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var rec APIKeyRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api key record: %w", err)
	}
	return &rec, nil
}

// PutAPIKey implements Store.
func (s *DynamoStore) PutAPIKey(ctx context.Context, rec *APIKeyRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal api key record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.keysTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put api key: %w", err)
	}
	return nil
}

// DeactivateAPIKey implements Store.
func (s *DynamoStore) DeactivateAPIKey(ctx context.Context, key string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.keysTable),
		Key: map[string]dynamotypes.AttributeValue{
			"api_key": &dynamotypes.AttributeValueMemberS{Value: key},
		},
		UpdateExpression:    aws.String("SET is_active = :f"),
		ConditionExpression: aws.String("attribute_exists(api_key)"),
		ExpressionAttributeValues: map[string]dynamotypes.AttributeValue{
			":f": &dynamotypes.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		var ccf *dynamotypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to deactivate api key: %w", err)
	}
	return nil
}

// PutUsage implements Store.
func (s *DynamoStore) PutUsage(ctx context.Context, row *UsageRow) error {
	item, err := attributevalue.MarshalMap(row)
	if err != nil {
		return fmt.Errorf("failed to marshal usage row: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.usageTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put usage row: %w", err)
	}
	return nil
}

// GetMapping implements Store.
func (s *DynamoStore) GetMapping(ctx context.Context, modelID string) (*ModelMapping, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.mappingTable),
		Key: map[string]dynamotypes.AttributeValue{
			"model_id": &dynamotypes.AttributeValueMemberS{Value: modelID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get model mapping: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var m ModelMapping
	if err := attributevalue.UnmarshalMap(out.Item, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model mapping: %w", err)
	}
	return &m, nil
}

// PutMapping implements Store.
func (s *DynamoStore) PutMapping(ctx context.Context, m *ModelMapping) error {
	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return fmt.Errorf("failed to marshal model mapping: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.mappingTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put model mapping: %w", err)
	}
	return nil
}

// ListMappings implements Store.
func (s *DynamoStore) ListMappings(ctx context.Context) ([]ModelMapping, error) {
	var mappings []ModelMapping
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.mappingTable),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model mappings: %w", err)
		}
		var batch []ModelMapping
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal model mappings: %w", err)
		}
		mappings = append(mappings, batch...)
	}
	return mappings, nil
}

// Ping implements Store.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.keysTable),
	})
	if err != nil {
		return fmt.Errorf("dynamodb unreachable: %w", err)
	}
	return nil
}
