package uploader

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/leakwatch/internal/journal"
)

type fakeS3 struct {
	mu       sync.Mutex
	failures int
	calls    int
	objects  map[string]string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("service unavailable")
	}

	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	f.objects[*in.Key] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func testArchiver(client ObjectPutter, opts Options) *Archiver {
	a := NewWithClient(client, opts, logrus.NewEntry(logrus.New()))
	a.backoff = time.Millisecond
	a.now = func() time.Time { return time.Date(2025, 12, 30, 10, 30, 0, 0, time.UTC) }
	return a
}

func TestArchiveKey(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"alert log", "threat_alerts.log", "2025/12/30/threat_alerts_20251230_1030.log"},
		{"links file", "discovered_groups.txt", "2025/12/30/discovered_groups_20251230_1030.txt"},
		{"no extension", "journal", "2025/12/30/journal_20251230_1030"},
	}

	at := time.Date(2025, 12, 30, 10, 30, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, archiveKey(tt.filename, at))
		})
	}
}

func TestArchiveAll(t *testing.T) {
	dir := t.TempDir()
	alerts := journal.New(filepath.Join(dir, "threat_alerts.log"))
	require.NoError(t, alerts.Append("[2025-12-30 10:29:00] THREAT_MATCH | Src: a | Actor: b | Tags: combo"))
	missing := journal.New(filepath.Join(dir, "discovered_groups.txt"))

	client := &fakeS3{}
	a := testArchiver(client, Options{Bucket: "intel", Prefix: "/leakwatch/"})
	a.ArchiveAll(context.Background(), alerts, missing)

	require.Len(t, client.objects, 1)
	assert.Contains(t, client.objects["leakwatch/2025/12/30/threat_alerts_20251230_1030.log"], "THREAT_MATCH")
}

func TestUploadRetries(t *testing.T) {
	client := &fakeS3{failures: 2}
	a := testArchiver(client, Options{Bucket: "intel", MaxRetries: 3})

	require.NoError(t, a.uploadWithRetry(context.Background(), "k", []byte("x")))
	assert.Equal(t, 3, client.calls)
}

func TestUploadGivesUp(t *testing.T) {
	client := &fakeS3{failures: 10}
	a := testArchiver(client, Options{Bucket: "intel", MaxRetries: 2})

	err := a.uploadWithRetry(context.Background(), "k", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
}

func TestStartFlushesOnShutdown(t *testing.T) {
	dir := t.TempDir()
	alerts := journal.New(filepath.Join(dir, "threat_alerts.log"))
	require.NoError(t, alerts.Append("line"))

	client := &fakeS3{}
	a := testArchiver(client, Options{Bucket: "intel", Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Start(ctx, alerts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, client.objects, 1)
}
