// Package secrets reads startup secrets from AWS Secrets Manager.
package secrets

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"github.com/sirupsen/logrus"

	"github.com/quillpress/cms-auth/internal/config"
)

// Client fetches secret strings by name
type Client struct {
	api    secretsmanageriface.SecretsManagerAPI
	logger *logrus.Logger
}

// New creates a Secrets Manager client for the configured region/profile
func New(awsCfg *config.AWSConfig, logger *logrus.Logger) (*Client, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config: aws.Config{
			Region:                        aws.String(awsCfg.Region),
			CredentialsChainVerboseErrors: aws.Bool(awsCfg.Profile != ""),
		},
		Profile: awsCfg.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewWithAPI(secretsmanager.New(sess), logger), nil
}

// NewWithAPI wraps an existing Secrets Manager API implementation
func NewWithAPI(api secretsmanageriface.SecretsManagerAPI, logger *logrus.Logger) *Client {
	return &Client{api: api, logger: logger}
}

// GetSecretString returns the string value of the named secret
func (c *Client) GetSecretString(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}

	result, err := c.api.GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret '%s': %w", name, err)
	}

	if result.SecretString == nil || *result.SecretString == "" {
		return "", fmt.Errorf("secret '%s' has no string value", name)
	}

	c.logger.WithField("name", name).Info("Retrieved secret from Secrets Manager")
	return *result.SecretString, nil
}
