package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quillpress/cms-auth/internal/config"
	"github.com/quillpress/cms-auth/internal/metrics"
	"github.com/quillpress/cms-auth/internal/models"
)

const (
	// usernameGuardPrefix marks the item that reserves a username. Guard items
	// carry no "username" attribute so they stay out of the username-index GSI.
	usernameGuardPrefix = "USERNAME#"

	conditionNotExists = "attribute_not_exists(user_id)"
	conditionExists    = "attribute_exists(user_id)"

	backendDynamoDB = "dynamodb"

	// createAttempts bounds retries when a concurrent registration of the
	// same username cancels ours with TransactionConflict.
	createAttempts = 3
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoDBStore stores users in a single table keyed by user_id. Each user
// owns two items: the user record and a username guard. Both are written in
// one transaction so a taken username fails the whole registration.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
	logger    *logrus.Logger
	now       func() time.Time
}

func NewDynamoDBStore(client DynamoDBAPI, tableName string, logger *logrus.Logger) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       time.Now,
	}
}

// NewDynamoDBClient loads AWS configuration and builds a DynamoDB client
func NewDynamoDBClient(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.DynamoDB.Region),
	}
	if cfg.AWS.Profile != "" {
		// Use specific profile for local development
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	})

	logger.WithFields(logrus.Fields{
		"region":     cfg.DynamoDB.Region,
		"table_name": cfg.DynamoDB.UsersTableName,
		"endpoint":   cfg.DynamoDB.Endpoint,
	}).Info("DynamoDB client initialized")

	return client, nil
}

func (s *DynamoDBStore) CreateUser(ctx context.Context, username, passwordHash, displayName string) (user *models.User, err error) {
	defer s.observe("create", time.Now(), &err)

	user = &models.User{
		UserID:       uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		CreatedAt:    s.now().UTC(),
	}

	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		return nil, fmt.Errorf("marshal failed: %w", err)
	}

	guard := map[string]types.AttributeValue{
		"user_id":  &types.AttributeValueMemberS{Value: guardKey(username)},
		"owner_id": &types.AttributeValueMemberS{Value: user.UserID},
	}

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(s.tableName),
				Item:                guard,
				ConditionExpression: aws.String(conditionNotExists),
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.tableName),
				Item:                item,
				ConditionExpression: aws.String(conditionNotExists),
			}},
		},
	}

	for attempt := 1; ; attempt++ {
		_, err = s.client.TransactWriteItems(ctx, input)
		switch {
		case err == nil:
			return user, nil
		case conditionFailedAt(err, 0):
			return nil, ErrDuplicateUsername
		case cancelledWith(err, 0, "TransactionConflict") && attempt < createAttempts:
			// The competing write settles the guard; retrying lets its
			// condition check decide the outcome.
			s.logger.WithFields(logrus.Fields{
				"username": username,
				"attempt":  attempt,
			}).Debug("Username guard write conflicted, retrying")
			if err := sleepCtx(ctx, time.Duration(attempt)*20*time.Millisecond); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("transact write failed: %w", err)
		}
	}
}

func (s *DynamoDBStore) FindByUsername(ctx context.Context, username string) (user *models.User, err error) {
	defer s.observe("find_by_username", time.Now(), &err)

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            keyOf(guardKey(username)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get username guard failed: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	owner, ok := out.Item["owner_id"].(*types.AttributeValueMemberS)
	if !ok || owner.Value == "" {
		return nil, fmt.Errorf("username guard for %q has no owner", username)
	}

	return s.getUser(ctx, owner.Value)
}

func (s *DynamoDBStore) FindByID(ctx context.Context, id string) (user *models.User, err error) {
	defer s.observe("find_by_id", time.Now(), &err)
	return s.getUser(ctx, id)
}

func (s *DynamoDBStore) DeleteUser(ctx context.Context, id string) (err error) {
	defer s.observe("delete", time.Now(), &err)

	user, err := s.getUser(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           aws.String(s.tableName),
				Key:                 keyOf(user.UserID),
				ConditionExpression: aws.String(conditionExists),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(s.tableName),
				Key:       keyOf(guardKey(user.Username)),
			}},
		},
	})
	if err != nil {
		if conditionFailedAt(err, 0) {
			return ErrNotFound
		}
		return fmt.Errorf("transact delete failed: %w", err)
	}

	return nil
}

func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		return fmt.Errorf("describe table failed: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) getUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" || strings.HasPrefix(id, usernameGuardPrefix) {
		return nil, ErrNotFound
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            keyOf(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item failed: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var user models.User
	if err := attributevalue.UnmarshalMap(out.Item, &user); err != nil {
		return nil, fmt.Errorf("unmarshal failed: %w", err)
	}
	return &user, nil
}

func (s *DynamoDBStore) observe(operation string, start time.Time, errp *error) {
	status := "success"
	if *errp != nil && !errors.Is(*errp, ErrNotFound) && !errors.Is(*errp, ErrDuplicateUsername) {
		status = "failure"
		s.logger.WithError(*errp).WithField("operation", operation).Error("DynamoDB operation failed")
	}
	metrics.RecordStoreOperation(backendDynamoDB, operation, status, time.Since(start))
}

func guardKey(username string) string {
	return usernameGuardPrefix + username
}

func keyOf(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: id},
	}
}

// conditionFailedAt reports whether the transaction was cancelled because
// the condition on the item at index idx failed
func conditionFailedAt(err error, idx int) bool {
	return cancelledWith(err, idx, "ConditionalCheckFailed")
}

func cancelledWith(err error, idx int, reason string) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) || len(tce.CancellationReasons) <= idx {
		return false
	}
	code := tce.CancellationReasons[idx].Code
	return code != nil && *code == reason
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
