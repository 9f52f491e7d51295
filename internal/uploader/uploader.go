package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/sirupsen/logrus"
)

// Source is a journal that can be archived
type Source interface {
	Path() string
	Snapshot() ([]byte, error)
}

// ObjectPutter is the subset of the S3 client the archiver needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures the S3 client and archive schedule
type Options struct {
	Bucket               string
	Region               string
	Prefix               string
	RoleARN              string
	WebIdentityTokenFile string
	AccessKeyID          string
	SecretAccessKey      string
	Endpoint             string
	Interval             time.Duration
	MaxRetries           int
}

// Archiver periodically uploads snapshots of the journals to S3
type Archiver struct {
	client     ObjectPutter
	bucket     string
	prefix     string
	interval   time.Duration
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
	logger     *logrus.Entry
}

// New builds an archiver. Credentials come from, in order: a role assumed with
// a web identity token, static keys, or the default AWS chain.
func New(ctx context.Context, opts Options, logger *logrus.Entry) (*Archiver, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.RoleARN == "" && opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if opts.RoleARN != "" {
		if opts.WebIdentityTokenFile == "" {
			return nil, errors.New("role ARN requires a web identity token file")
		}
		provider := stscreds.NewWebIdentityRoleProvider(
			sts.NewFromConfig(cfg),
			opts.RoleARN,
			stscreds.IdentityTokenFile(opts.WebIdentityTokenFile),
		)
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, opts, logger), nil
}

// NewWithClient builds an archiver around an existing client.
func NewWithClient(client ObjectPutter, opts Options, logger *logrus.Entry) *Archiver {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Archiver{
		client:     client,
		bucket:     opts.Bucket,
		prefix:     strings.Trim(opts.Prefix, "/"),
		interval:   interval,
		maxRetries: opts.MaxRetries,
		backoff:    time.Second,
		now:        time.Now,
		logger:     logger,
	}
}

// Start uploads every source once per interval until ctx is cancelled, then
// makes one last pass so the final state reaches the bucket.
func (a *Archiver) Start(ctx context.Context, sources ...Source) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.ArchiveAll(ctx, sources...)

		case <-ctx.Done():
			a.logger.Info("Archiver shutting down, uploading final snapshots")
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			a.ArchiveAll(flushCtx, sources...)
			cancel()
			return ctx.Err()
		}
	}
}

// ArchiveAll uploads a snapshot of each source. Failures are logged and do not
// stop the remaining uploads.
func (a *Archiver) ArchiveAll(ctx context.Context, sources ...Source) {
	at := a.now()
	for _, src := range sources {
		if err := a.archive(ctx, src, at); err != nil {
			a.logger.WithField("path", src.Path()).WithError(err).Error("Archive failed")
		}
	}
}

func (a *Archiver) archive(ctx context.Context, src Source, at time.Time) error {
	data, err := src.Snapshot()
	if errors.Is(err, os.ErrNotExist) {
		return nil // nothing written yet
	}
	if err != nil {
		return err
	}

	key := a.objectKey(filepath.Base(src.Path()), at)
	return a.uploadWithRetry(ctx, key, data)
}

func (a *Archiver) uploadWithRetry(ctx context.Context, key string, data []byte) error {
	var err error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		err = a.upload(ctx, key, data)
		if err == nil {
			a.logger.WithFields(logrus.Fields{
				"bucket": a.bucket,
				"key":    key,
				"bytes":  len(data),
			}).Info("Archived journal")
			return nil
		}

		if attempt < a.maxRetries {
			wait := a.backoff << uint(attempt)
			a.logger.WithFields(logrus.Fields{
				"key":     key,
				"attempt": attempt + 1,
				"retry":   wait,
			}).WithError(err).Warn("Upload attempt failed")

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("upload %s after %d attempts: %w", key, a.maxRetries+1, err)
}

func (a *Archiver) upload(ctx context.Context, key string, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (a *Archiver) objectKey(filename string, at time.Time) string {
	key := archiveKey(filename, at)
	if a.prefix != "" {
		return path.Join(a.prefix, key)
	}
	return key
}

// archiveKey places a snapshot under its day.
// Input: threat_alerts.log at 2025-12-30 10:30
// Output: 2025/12/30/threat_alerts_20251230_1030.log
func archiveKey(filename string, at time.Time) string {
	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)
	return fmt.Sprintf("%04d/%02d/%02d/%s_%s%s",
		at.Year(), at.Month(), at.Day(), name, at.Format("20060102_1504"), ext)
}
