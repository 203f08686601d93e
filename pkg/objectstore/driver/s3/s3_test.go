package s3

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
	"github.com/tendant/simple-objectstore/pkg/objectstore/drivertest"
)

func TestNew_Configuration(t *testing.T) {
	ctx := context.Background()

	t.Run("DefaultRegion", func(t *testing.T) {
		d, err := New(ctx, Config{AccessKeyID: "test-key", SecretAccessKey: "test-secret"})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", d.config.Region)

		locations, err := d.Locations(ctx)
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", locations[0].ID)
		assert.True(t, d.SupportsUserMetadata())
		assert.Equal(t, ProviderName, d.Name())
	})

	t.Run("CustomEndpoint", func(t *testing.T) {
		d, err := New(ctx, Config{
			Region:          "eu-west-1",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			Endpoint:        "http://localhost:9000",
			UsePathStyle:    true,
		})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9000", *d.client.Options().BaseEndpoint)
		assert.True(t, d.client.Options().UsePathStyle)
	})
}

func TestApplySSE(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   types.ServerSideEncryption
		kmsKey string
	}{
		{"Disabled", Config{}, "", ""},
		{"AES256", Config{EnableSSE: true, SSEAlgorithm: "AES256"}, types.ServerSideEncryptionAes256, ""},
		{"KMS", Config{EnableSSE: true, SSEAlgorithm: "aws:kms", SSEKMSKeyID: "key-1"}, types.ServerSideEncryptionAwsKms, "key-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Driver{config: tt.config}
			input := &s3.PutObjectInput{}
			d.applySSE(input)
			assert.Equal(t, tt.want, input.ServerSideEncryption)
			if tt.kmsKey != "" {
				assert.Equal(t, tt.kmsKey, *input.SSEKMSKeyId)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchBucket"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "obj/", prefix("obj"))
	assert.Equal(t, "obj/", prefix("obj/"))
}

// TestIntegration requires a running MinIO instance or S3 credentials
func TestIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	endpoint := os.Getenv("AWS_S3_ENDPOINT")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	bucket := os.Getenv("AWS_S3_BUCKET")
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		t.Skip("Skipping integration test: S3/MinIO environment variables not set")
	}

	d, err := New(context.Background(), Config{
		Region:          "us-east-1",
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Endpoint:        endpoint,
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	drivertest.RunDriver(t, d, bucket)
	drivertest.RunStorage(t, func(ctx context.Context) (objectstore.Driver, error) {
		return d, nil
	}, bucket)
}
