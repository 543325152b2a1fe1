package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Record is the archived copy of a finished call.
type Record struct {
	CallID          string    `json:"call_id"`
	CheckID         string    `json:"reference_check_id"`
	ContactName     string    `json:"contact_name,omitempty"`
	Phone           string    `json:"phone_number"`
	Raw             string    `json:"raw_transcript"`
	Formatted       string    `json:"formatted_transcript"`
	DurationSeconds int       `json:"duration_seconds"`
	RecordingURL    string    `json:"recording_url,omitempty"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Store keeps a durable copy of completed transcripts outside the database.
type Store interface {
	PutTranscript(ctx context.Context, r Record) error
}

// NoopStore is used when archiving is not configured.
type NoopStore struct{}

func (NoopStore) PutTranscript(context.Context, Record) error { return nil }

type S3Config struct {
	Bucket   string
	Region   string
	Prefix   string
	Endpoint string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes one JSON object per call at <prefix><check_id>/<call_id>.json.
type S3Store struct {
	client objectPutter
	bucket string
	prefix string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, cfg), nil
}

func newS3Store(client objectPutter, cfg S3Config) *S3Store {
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

// Key returns the object key for a record.
func (s *S3Store) Key(r Record) string {
	check := r.CheckID
	if check == "" {
		check = "unassigned"
	}
	return strings.TrimPrefix(path.Join(s.prefix, check, r.CallID+".json"), "/")
}

func (s *S3Store) PutTranscript(ctx context.Context, r Record) error {
	if r.CallID == "" {
		return fmt.Errorf("archive: call id is required")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.Key(r)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put transcript object: %w", err)
	}
	return nil
}

// MemoryStore keeps records in memory for tests.
type MemoryStore struct {
	Records []Record
	Err     error
}

func (m *MemoryStore) PutTranscript(_ context.Context, r Record) error {
	if m.Err != nil {
		return m.Err
	}
	m.Records = append(m.Records, r)
	return nil
}
