// internal/security/validation.go
package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validate *validator.Validate
var logger *zap.Logger

func init() {
	logger = zap.L().Named("security")
	validate = validator.New()
}

// NewValidator returns a fresh go-playground validator instance.
func NewValidator() *validator.Validate {
	return validator.New()
}

// ValidateStruct validates s against its `validate` struct tags.
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateJobID checks that id is a well-formed UUID, the only shape the
// job table's primary key accepts.
func ValidateJobID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid job id %q: %w", id, err)
	}
	return nil
}

var filenameAllowed = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeFilename strips path separators and any character outside a
// conservative allowlist from filename, so it is always safe to use as
// (part of) a storage key.
func SanitizeFilename(filename string) string {
	base := filepath.Base(filename)
	return filenameAllowed.ReplaceAllString(base, "_")
}

// ValidateStorageKey rejects any key that, once cleaned, would escape
// baseDir — the path-traversal guard local storage depends on to keep a
// maliciously crafted job or entity id from reading or writing outside its
// bucket directory.
func ValidateStorageKey(baseDir, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage key must not be empty")
	}
	if strings.Contains(key, "\x00") {
		return "", fmt.Errorf("storage key contains a null byte")
	}

	cleanBase := filepath.Clean(baseDir)
	joined := filepath.Join(cleanBase, key)
	cleanJoined := filepath.Clean(joined)

	rel, err := filepath.Rel(cleanBase, cleanJoined)
	if err != nil {
		return "", fmt.Errorf("resolving storage key: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage key %q escapes base directory", key)
	}

	return cleanJoined, nil
}

// ValidateMaskingLevel checks level against the three values the pipeline
// understands.
func ValidateMaskingLevel(level string) error {
	switch level {
	case "safe_harbor", "limited_dataset", "custom":
		return nil
	default:
		return fmt.Errorf("invalid masking level %q", level)
	}
}
