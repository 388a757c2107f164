package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ObjectAPI is the part of the S3 client the storage service uses
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner signs download links
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedURL, error)
}

// PresignedURL is a time-limited download link
type PresignedURL struct {
	URL string
}

type presigner struct {
	client *s3.PresignClient
}

func (p presigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedURL, error) {
	req, err := p.client.PresignGetObject(ctx, in, optFns...)
	if err != nil {
		return nil, err
	}
	return &PresignedURL{URL: req.URL}, nil
}

type StorageService struct {
	objects   ObjectAPI
	presigner Presigner
	bucket    string
	region    string
}

// NewStorageService creates a storage service from the default AWS credential chain
func NewStorageService(ctx context.Context, region, bucket string) (*StorageService, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket not configured")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %v", err)
	}
	client := s3.NewFromConfig(cfg)
	return &StorageService{
		objects:   client,
		presigner: presigner{client: s3.NewPresignClient(client)},
		bucket:    bucket,
		region:    region,
	}, nil
}

// NewStorageServiceWith wires explicit clients
func NewStorageServiceWith(objects ObjectAPI, p Presigner, region, bucket string) *StorageService {
	return &StorageService{objects: objects, presigner: p, bucket: bucket, region: region}
}

// ObjectKey builds "folder/2025/06/02/<random>.ext"
func ObjectKey(folder, filename string, now time.Time) string {
	randomID := uuid.New().String()[:16]
	return fmt.Sprintf("%s/%d/%02d/%02d/%s.%s",
		strings.Trim(folder, "/"),
		now.Year(),
		now.Month(),
		now.Day(),
		randomID,
		getFileExtension(filename),
	)
}

// UploadBytes stores data under folder and returns the object key
func (s *StorageService) UploadBytes(ctx context.Context, folder, filename string, data []byte) (string, error) {
	ext := getFileExtension(filename)
	key := ObjectKey(folder, filename, time.Now())
	_, err := s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentType:        aws.String(getContentType(ext)),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", filepath.Base(filename))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %v", err)
	}
	return key, nil
}

// DownloadURL returns a presigned link to key valid for ttl
func (s *StorageService) DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.presigner == nil {
		return s.PublicURL(key), nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %v", key, err)
	}
	return req.URL, nil
}

// PublicURL is the virtual-hosted style URL of key
func (s *StorageService) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// DeleteFile deletes a file from S3 by its public URL
func (s *StorageService) DeleteFile(ctx context.Context, fileURL string) error {
	key := extractKeyFromURL(fileURL)
	if key == "" {
		return fmt.Errorf("invalid file URL")
	}
	_, err := s.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

// getFileExtension extracts file extension from filename
func getFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 1 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// getContentType returns the MIME type for the file extension
func getContentType(extension string) string {
	switch strings.ToLower(extension) {
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "zip":
		return "application/zip"
	case "json":
		return "application/json"
	case "csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// extractKeyFromURL extracts the S3 key from a full URL
func extractKeyFromURL(url string) string {
	// Example URL: https://bucket.s3.region.amazonaws.com/path/to/file.ext
	parts := strings.Split(url, ".amazonaws.com/")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
