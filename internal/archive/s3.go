package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sectormind/engine/pkg/types"
)

// S3Sink uploads each archived room as a single JSON object keyed by
// discussion id.
type S3Sink struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Sink loads the default AWS config chain (env vars, shared config,
// instance role) and constructs an S3Sink targeting bucket/prefix.
func NewS3Sink(ctx context.Context, bucket, prefix string) (*S3Sink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Sink{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

// Archive implements Sink.
func (s *S3Sink) Archive(ctx context.Context, room types.DiscussionRoom) error {
	data, err := marshalRoom(room)
	if err != nil {
		return fmt.Errorf("marshal room %s: %w", room.ID, err)
	}

	key := s.prefix + room.ID + ".json"
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload room %s: %w", room.ID, err)
	}
	return nil
}
