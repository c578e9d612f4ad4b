package service

import (
	"context"
	"strings"
	"testing"

	"github.com/AnTengye/dealpipe/backend/config"
)

func TestNewMinioService(t *testing.T) {
	cfg := &config.MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "test",
		UseSSL:    false,
	}

	// Client creation does not dial; the connection is only tested on
	// the first operation.
	svc, err := NewMinioService(cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if svc == nil {
		t.Error("Expected non-nil service")
	}
}

func TestMinioServiceGetPublicURL(t *testing.T) {
	tests := []struct {
		name       string
		useSSL     bool
		endpoint   string
		bucket     string
		objectName string
		expected   string
	}{
		{
			name:       "http url",
			useSSL:     false,
			endpoint:   "localhost:9000",
			bucket:     "test-bucket",
			objectName: "proj-1/task/bom.pdf",
			expected:   "http://localhost:9000/test-bucket/proj-1/task/bom.pdf",
		},
		{
			name:       "https url",
			useSSL:     true,
			endpoint:   "minio.example.com",
			bucket:     "bom-docs",
			objectName: "proj-2/task/bom.xlsx",
			expected:   "https://minio.example.com/bom-docs/proj-2/task/bom.xlsx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MinioService{
				bucket: tt.bucket,
				config: &config.MinioConfig{
					Endpoint: tt.endpoint,
					UseSSL:   tt.useSSL,
				},
			}

			result := svc.GetPublicURL(tt.objectName)
			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestMinioServiceWithCancelledContext(t *testing.T) {
	cfg := &config.MinioConfig{
		Endpoint:   "localhost:9000",
		AccessKey:  "test",
		SecretKey:  "test",
		Bucket:     "test",
		UseSSL:     false,
		ExpireDays: 7,
	}

	svc, err := NewMinioService(cfg)
	if err != nil {
		t.Skip("Could not create MinIO service")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.UploadFile(ctx, "test", strings.NewReader("test"), 4, "text/plain"); err == nil {
		t.Error("Expected error with cancelled context")
	}
}
