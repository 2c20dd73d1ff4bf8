package storage

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		wantErr     bool
	}{
		{"application/json", false},
		{"Application/JSON; charset=utf-8", false},
		{"image/png", true},
		{"", true},
	}
	for _, tt := range tests {
		if err := ValidateContentType(tt.contentType); (err != nil) != tt.wantErr {
			t.Fatalf("%q: expected error=%v, got %v", tt.contentType, tt.wantErr, err)
		}
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"jobs/snapshot.json", false},
		{"snapshot.json", false},
		{"", true},
		{"/abs.json", true},
		{"jobs/../secret", true},
	}
	for _, tt := range tests {
		if err := ValidateKey(tt.key); (err != nil) != tt.wantErr {
			t.Fatalf("%q: expected error=%v, got %v", tt.key, tt.wantErr, err)
		}
	}
}

func TestValidateBucket(t *testing.T) {
	if err := ValidateBucket("shopfloor-snapshots"); err != nil {
		t.Fatalf("valid bucket rejected: %v", err)
	}
	for _, bad := range []string{"ab", "Upper", "under_score"} {
		if err := ValidateBucket(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestTranslateErrorMapsMissingKeys(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	if err := translateError("k", missing); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}
	if err := translateError("k", denied); errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("access denied must not look like a missing key")
	}
}
