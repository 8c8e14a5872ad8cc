// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package storage keeps profile photos in an S3-compatible bucket.

Objects are private. Clients only ever see a time-limited presigned GET URL,
so a leaked link stops working after the configured lifetime.
*/
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options configures the bucket connection.
type Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO. Path-style
	// addressing is used when it is set.
	Endpoint string
	// URLTTL is the lifetime of presigned GET URLs.
	URLTTL time.Duration
}

// objectAPI is the subset of the S3 client the store calls.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// presignAPI is the subset of the presign client the store calls.
type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store implements photo storage on top of aws-sdk-go-v2.
type S3Store struct {
	bucket  string
	urlTTL  time.Duration
	objects objectAPI
	presign presignAPI
}

// NewS3Store loads the AWS configuration with static credentials and builds
// the object and presign clients.
func NewS3Store(ctx context.Context, options Options) (*S3Store, error) {
	if options.Bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}

	loadOptions := []func(*config.LoadOptions) error{config.WithRegion(options.Region)}
	if options.AccessKeyID != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(options.AccessKeyID, options.SecretAccessKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if options.Endpoint != "" {
			o.BaseEndpoint = aws.String(options.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(options.Bucket, options.URLTTL, client, s3.NewPresignClient(client)), nil
}

func newS3Store(bucket string, urlTTL time.Duration, objects objectAPI, presign presignAPI) *S3Store {
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}
	return &S3Store{bucket: bucket, urlTTL: urlTTL, objects: objects, presign: presign}
}

// Put uploads body under key with the given content type.
func (store *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := store.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(store.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("storage_put_failed: %w", err)
	}
	return nil
}

// Delete removes the object at key. Deleting a missing key succeeds.
func (store *S3Store) Delete(ctx context.Context, key string) error {
	_, err := store.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage_delete_failed: %w", err)
	}
	return nil
}

// SignedURL returns a presigned GET URL for key valid for the configured TTL.
func (store *S3Store) SignedURL(ctx context.Context, key string) (string, error) {
	request, err := store.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(store.urlTTL))
	if err != nil {
		return "", fmt.Errorf("storage_presign_failed: %w", err)
	}
	return request.URL, nil
}
