// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package paramstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	log "github.com/sirupsen/logrus"
)

// maxGetParameters is the SSM limit of names per GetParameters call.
const maxGetParameters = 10

type ssmAPI interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
}

// SSMStore is a Store on AWS Systems Manager Parameter Store. Values are
// written as SecureString and read with decryption.
type SSMStore struct {
	client ssmAPI
}

// NewSSMStore builds an SSMStore from the default AWS credential chain
// (the function's execution role inside Lambda).
func NewSSMStore(ctx context.Context) (*SSMStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &SSMStore{client: ssm.NewFromConfig(cfg)}, nil
}

func newSSMStoreWithClient(client ssmAPI) *SSMStore {
	return &SSMStore{client: client}
}

func (s *SSMStore) GetParameters(ctx context.Context, names []string) (map[string]Parameter, error) {
	res := make(map[string]Parameter, len(names))

	for start := 0; start < len(names); start += maxGetParameters {
		end := start + maxGetParameters
		if end > len(names) {
			end = len(names)
		}

		out, err := s.client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          names[start:end],
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("ssm GetParameters: %w", err)
		}

		for _, p := range out.Parameters {
			param := Parameter{
				Name:    aws.ToString(p.Name),
				Value:   aws.ToString(p.Value),
				Version: p.Version,
			}
			if p.LastModifiedDate != nil {
				param.LastModified = *p.LastModifiedDate
			}
			res[param.Name] = param
		}

		if len(out.InvalidParameters) > 0 {
			log.WithField("names", out.InvalidParameters).Debug("SSM parameters not found")
		}
	}

	return res, nil
}

func (s *SSMStore) Put(ctx context.Context, name, value string, overwrite bool) error {
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(overwrite),
	})

	var exists *types.ParameterAlreadyExists
	if errors.As(err, &exists) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("ssm PutParameter %s: %w", name, err)
	}
	return nil
}

func (s *SSMStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{
		Name: aws.String(name),
	})

	var notFound *types.ParameterNotFound
	if errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ssm DeleteParameter %s: %w", name, err)
	}
	return nil
}
