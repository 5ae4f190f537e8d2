package sink

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/bosley/snipe/recording"
)

type uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3 stores artifacts at s3://<Bucket>/<sessionID>/<fileName>. Credentials
// come from the default AWS chain.
type S3 struct {
	Bucket   string
	uploader uploader
}

func NewS3(bucket, region string) (*S3, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &S3{Bucket: bucket, uploader: s3manager.NewUploader(sess)}, nil
}

func (s *S3) Key(artifact recording.Artifact) string {
	return path.Join(artifact.SessionID, path.Base(artifact.FileName))
}

func (s *S3) Save(ctx context.Context, artifact recording.Artifact) error {
	key := s.Key(artifact)
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(artifact.Data),
		ContentType: aws.String(artifact.MimeType),
		Metadata: map[string]*string{
			"question-index": aws.String(fmt.Sprint(artifact.QuestionIndex)),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3: %w", key, err)
	}

	slog.Info("Uploaded recording to S3",
		"sessionID", artifact.SessionID,
		"questionIndex", artifact.QuestionIndex,
		"location", out.Location)
	return nil
}
