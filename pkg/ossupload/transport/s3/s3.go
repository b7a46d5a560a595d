// Package s3 uploads through an S3-compatible API instead of the POST form protocol.
//
// It suits buckets whose STS credentials are also valid for the S3 API (MinIO, OSS
// S3 compatibility mode). The policy fields of the form are not sent; the size bound
// is enforced by the Uploader before the transfer starts.
package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/tendant/oss-upload/pkg/ossupload"
)

// Config options for the S3 transport
type Config struct {
	Bucket       string // Bucket name (required)
	Region       string // Region (default: us-east-1)
	Endpoint     string // Overrides the credential endpoint when set
	UsePathStyle bool   // Use path-style addressing (default: false)
}

// Transport implements ossupload.Transport with the aws-sdk-go-v2 upload manager.
type Transport struct {
	config Config
}

// New creates an S3 transport
func New(config Config) (*Transport, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	return &Transport{config: config}, nil
}

// Transfer uploads req.FilePath under req.Key with the request's temporary credential.
// A client is built per transfer because every upload may carry a new credential.
func (t *Transport) Transfer(ctx context.Context, req *ossupload.Request) (*ossupload.Response, error) {
	if req.Credential == nil {
		return nil, ossupload.ErrNoCredential
	}
	cred := req.Credential

	client, err := t.newClient(ctx, req.URL, cred.AccessKeyID, cred.AccessKeySecret, cred.SecurityToken)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(t.config.Bucket),
		Key:    aws.String(req.Key),
		Body:   file,
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}

	uploader := manager.NewUploader(client)
	if _, err := uploader.Upload(ctx, input); err != nil {
		return nil, toTransferError(err)
	}
	return &ossupload.Response{StatusCode: 200}, nil
}

func (t *Transport) newClient(ctx context.Context, url, accessKeyID, secret, sessionToken string) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(t.config.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secret,
			sessionToken,
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := t.config.Endpoint
	if endpoint == "" {
		endpoint = url
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(strings.TrimRight(endpoint, "/"))
		}
		o.UsePathStyle = t.config.UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return client, nil
}

func toTransferError(err error) error {
	te := &ossupload.TransferError{Message: err.Error()}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		te.StatusCode = respErr.HTTPStatusCode()
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		te.Code = apiErr.ErrorCode()
		if msg := apiErr.ErrorMessage(); msg != "" {
			te.Message = msg
		}
	}
	if te.StatusCode == 0 && te.Code == "" {
		// network level failure, nothing came back from the bucket
		return fmt.Errorf("%w: %v", ossupload.ErrUploadFailed, err)
	}
	return te
}
