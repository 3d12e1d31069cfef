package modelstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

// TestS3Backend_Integration runs against an S3-compatible service such as
// MinIO. Set BEHAVIORFLOW_TEST_S3_ENDPOINT and BEHAVIORFLOW_TEST_S3_BUCKET
// (an existing bucket); credentials come from the default AWS chain.
func TestS3Backend_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	endpoint := os.Getenv("BEHAVIORFLOW_TEST_S3_ENDPOINT")
	bucket := os.Getenv("BEHAVIORFLOW_TEST_S3_BUCKET")
	if endpoint == "" || bucket == "" {
		t.Skip("BEHAVIORFLOW_TEST_S3_ENDPOINT and BEHAVIORFLOW_TEST_S3_BUCKET not set")
	}

	ctx := context.Background()
	cfg := DefaultS3Config(bucket)
	cfg.Endpoint = endpoint
	cfg.Region = "us-east-1"
	cfg.UsePathStyle = true
	cfg.Prefix = fmt.Sprintf("test-%d/", time.Now().UnixNano())

	b, err := NewS3Backend(ctx, cfg)
	if err != nil {
		t.Fatalf("NewS3Backend failed: %v", err)
	}
	defer b.Close()

	for _, m := range [][2]string{{"m1", "S1"}, {"m2", "S1"}, {"m3", "S2"}} {
		if err := b.Save(ctx, NewRecord(sampleModel(m[0], m[1]))); err != nil {
			t.Fatalf("Save %s failed: %v", m[0], err)
		}
		id := m[0]
		t.Cleanup(func() { b.Delete(context.Background(), id) })
	}

	rec, err := b.Load(ctx, "m3")
	if err != nil || rec.SessionID != "S2" {
		t.Fatalf("Load = %+v, %v", rec, err)
	}
	if _, err := b.Load(ctx, "missing"); !errors.IsCode(err, errors.CodeModelNotFound) {
		t.Errorf("expected CodeModelNotFound, got %v", err)
	}

	records, err := b.List(ctx, "S1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got := recordIDs(records); got != "m1,m2" {
		t.Errorf("List(S1) = %s, want m1,m2", got)
	}

	if err := b.Delete(ctx, "m1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	all, err := b.List(ctx, "")
	if err != nil || recordIDs(all) != "m2,m3" {
		t.Errorf("List() after delete = %s, %v", recordIDs(all), err)
	}
}
