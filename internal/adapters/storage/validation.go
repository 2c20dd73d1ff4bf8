package storage

import (
	"fmt"
	"strings"
)

// AllowedContentTypes defines the MIME types snapshot objects may carry.
var AllowedContentTypes = map[string]bool{
	"application/json":     true,
	"application/x-ndjson": true,
	"application/gzip":     true,
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if !AllowedContentTypes[ct] {
		return fmt.Errorf("content type %q is not allowed", contentType)
	}
	return nil
}

// ValidateKey rejects empty keys and path traversal.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("object key is required")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("object key %q must be relative", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("object key %q must not contain '..'", key)
		}
	}
	return nil
}

// ValidateBucket applies the S3 bucket naming length and charset rules.
func ValidateBucket(bucket string) error {
	if len(bucket) < 3 || len(bucket) > 63 {
		return fmt.Errorf("bucket name %q must be 3 to 63 characters", bucket)
	}
	for _, r := range bucket {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '.' {
			return fmt.Errorf("bucket name %q contains %q", bucket, r)
		}
	}
	return nil
}
