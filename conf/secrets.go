package conf

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// HubToken returns the registry access token. A plain HUB_TOKEN wins;
// otherwise the token is read from the AWS secret named by
// HUB_TOKEN_SECRET_NAME. An empty token means anonymous access.
func HubToken(ctx context.Context) (string, error) {
	if token := os.Getenv("HUB_TOKEN"); token != "" {
		return token, nil
	}
	secretName := os.Getenv("HUB_TOKEN_SECRET_NAME")
	if secretName == "" {
		return "", nil
	}
	secretValue, err := getSecretFromAWS(ctx, secretName)
	if err != nil {
		return "", fmt.Errorf("failed to get hub token from AWS: %w", err)
	}
	var secret struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(secretValue), &secret); err != nil {
		return "", fmt.Errorf("failed to parse hub token secret: %w", err)
	}
	return secret.Token, nil
}

func getSecretFromAWS(ctx context.Context, secretName string) (string, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", err
	}
	svc := secretsmanager.NewFromConfig(cfg)
	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	result, err := svc.GetSecretValue(ctx, input)
	if err != nil {
		return "", err
	}
	return aws.ToString(result.SecretString), nil
}
