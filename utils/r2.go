package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// R2Config holds the Cloudflare R2 settings, read from the R2_* variables.
type R2Config struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	// PublicBase is the public development URL of the bucket. When empty,
	// uploads are handed out as presigned GET URLs.
	PublicBase string `yaml:"public_base"`
}

// Validate reports missing settings.
func (c R2Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"R2_ACCESS_KEY_ID":     c.AccessKeyID,
		"R2_SECRET_ACCESS_KEY": c.SecretAccessKey,
		"R2_ENDPOINT":          c.Endpoint,
		"R2_BUCKET":            c.Bucket,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.Errorf("missing R2 settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func R2Session(cfg R2Config) (*s3.S3, error) {
	start := time.Now()
	log := logrus.WithField("component", "R2Session")
	log.Info("[R2Session] ➜ Initializing Cloudflare R2 session...")

	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		log.WithError(err).Error("[R2Session] ❌ Failed to create session")
		return nil, errors.Wrap(err, "create R2 session")
	}

	log.WithField("region", region).Infof("[R2Session] ✅ R2 session initialized in %s", time.Since(start))
	return s3.New(sess), nil
}

// R2Client uploads to and deletes from one bucket.
type R2Client struct {
	svc        s3iface.S3API
	bucket     string
	publicBase string
	presignTTL time.Duration
	log        *logrus.Entry
}

// NewR2Client opens a session for cfg. Presigned URLs stay valid for
// presignTTL.
func NewR2Client(cfg R2Config, presignTTL time.Duration) (*R2Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	svc, err := R2Session(cfg)
	if err != nil {
		return nil, err
	}
	return NewR2ClientWithService(svc, cfg, presignTTL), nil
}

// NewR2ClientWithService uses an existing S3 API implementation.
func NewR2ClientWithService(svc s3iface.S3API, cfg R2Config, presignTTL time.Duration) *R2Client {
	return &R2Client{
		svc:        svc,
		bucket:     cfg.Bucket,
		publicBase: strings.TrimSuffix(cfg.PublicBase, "/"),
		presignTTL: presignTTL,
		log:        logrus.WithField("component", "R2"),
	}
}

func (c *R2Client) UploadToR2(ctx context.Context, key string, data []byte) (string, error) {
	return c.UploadStreamToR2(ctx, key, bytes.NewReader(data))
}

func (c *R2Client) UploadStreamToR2(ctx context.Context, key string, body io.ReadSeeker) (string, error) {
	log := c.log.WithField("key", key)
	log.Info("[UploadToR2] ➜ Uploading to R2")

	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/pdf"),
	}
	if c.publicBase != "" {
		input.ACL = aws.String("public-read")
	}
	if _, err := c.svc.PutObjectWithContext(ctx, input); err != nil {
		log.WithError(err).Error("[UploadToR2] ❌ Upload failed")
		return "", errors.Wrap(err, "upload to R2")
	}

	url, err := c.objectURL(key)
	if err != nil {
		return "", err
	}
	log.WithField("url", url).Info("[UploadToR2] ✅ Upload successful")
	return url, nil
}

func (c *R2Client) objectURL(key string) (string, error) {
	if c.publicBase != "" {
		return fmt.Sprintf("%s/%s", c.publicBase, key), nil
	}
	req, _ := c.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(c.presignTTL)
	if err != nil {
		return "", errors.Wrap(err, "presign R2 object")
	}
	return url, nil
}

func (c *R2Client) DeleteFromR2(ctx context.Context, key string) error {
	_, err := c.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("[DeleteFromR2] ❌ Delete failed")
		return errors.Wrap(err, "delete from R2")
	}
	c.log.WithField("key", key).Info("[DeleteFromR2] ✅ Object released")
	return nil
}
