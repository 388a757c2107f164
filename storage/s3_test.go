package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeObjects struct {
	put     *s3.PutObjectInput
	body    []byte
	deleted string
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = aws.ToString(in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestUploadBytes(t *testing.T) {
	objects := &fakeObjects{}
	svc := NewStorageServiceWith(objects, nil, "ap-southeast-1", "exports")

	key, err := svc.UploadBytes(context.Background(), "/schedules/", "group-10.xlsx", []byte("sheet"))
	if err != nil {
		t.Fatalf("UploadBytes returned error: %v", err)
	}
	if !strings.HasPrefix(key, "schedules/") || !strings.HasSuffix(key, ".xlsx") {
		t.Fatalf("unexpected key %q", key)
	}
	if aws.ToString(objects.put.Bucket) != "exports" || string(objects.body) != "sheet" {
		t.Fatalf("unexpected upload %+v", objects.put)
	}
	if ct := aws.ToString(objects.put.ContentType); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("unexpected content type %q", ct)
	}

	url, err := svc.DownloadURL(context.Background(), key, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://exports.s3.ap-southeast-1.amazonaws.com/"+key {
		t.Fatalf("unexpected url %q", url)
	}
	if err := svc.DeleteFile(context.Background(), url); err != nil || objects.deleted != key {
		t.Fatalf("expected %q deleted, got %q (%v)", key, objects.deleted, err)
	}
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("audit", "logs.zip", time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC))
	if !strings.HasPrefix(key, "audit/2025/06/02/") || !strings.HasSuffix(key, ".zip") {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestExtractKeyFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://b.s3.ap-southeast-1.amazonaws.com/a/b.xlsx", "a/b.xlsx"},
		{"https://example.com/a/b.xlsx", ""},
	}
	for _, tt := range tests {
		if got := extractKeyFromURL(tt.url); got != tt.want {
			t.Errorf("extractKeyFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
