package storage

import (
	"fmt"
	"strings"
)

// MaxObjectSize bounds a single stored object (64 MiB).
const MaxObjectSize int64 = 64 << 20

// AllowedContentTypes defines the MIME types accepted for upload.
var AllowedContentTypes = map[string]bool{
	"application/json":         true,
	"application/octet-stream": true,
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	// Normalize content type (remove parameters like charset)
	normalized := strings.Split(contentType, ";")[0]
	normalized = strings.TrimSpace(strings.ToLower(normalized))

	if !AllowedContentTypes[normalized] {
		return fmt.Errorf("content type %q is not allowed", contentType)
	}
	return nil
}

// ValidateObjectSize checks if the object size is within limits.
func ValidateObjectSize(sizeBytes int64) error {
	if sizeBytes <= 0 {
		return fmt.Errorf("object size must be greater than 0")
	}
	if sizeBytes > MaxObjectSize {
		return fmt.Errorf("object size %d bytes exceeds maximum allowed size of %d bytes", sizeBytes, MaxObjectSize)
	}
	return nil
}

// ValidateObjectKey rejects keys that are empty, absolute, or climb out of the bucket.
func ValidateObjectKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("object key %q must be a relative path", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "" {
			return fmt.Errorf("object key %q contains an invalid segment", key)
		}
	}
	return nil
}
