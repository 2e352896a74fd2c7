package api

import (
	"fmt"
	"mime"
	"slices"
	"strings"

	"roastmachine/internal/config"
	"roastmachine/internal/services"
)

// contentTypeAliases maps equivalent MIME types onto the names the allow list uses.
var contentTypeAliases = map[string]string{
	"audio/mpeg":  "audio/mp3",
	"audio/x-wav": "audio/wav",
	"audio/wave":  "audio/wav",
}

// UploadPolicy rejects oversize and wrong-type uploads before a run is queued.
type UploadPolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

// NewUploadPolicy builds the policy from the ingress configuration.
func NewUploadPolicy(cfg config.Ingress) UploadPolicy {
	allowed := make([]string, 0, len(cfg.AllowedTypes))
	for _, value := range cfg.AllowedTypes {
		allowed = append(allowed, normalizeContentType(value))
	}
	return UploadPolicy{MaxBytes: cfg.MaxUploadBytes, AllowedTypes: allowed}
}

// Validate checks size and content type and returns the normalized type.
func (p UploadPolicy) Validate(contentType string, size int64) (string, error) {
	if size <= 0 {
		return "", services.Wrap(services.ErrValidation, "ingress", "", "no audio file provided", nil)
	}
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return "", services.Wrap(services.ErrValidation, "ingress", "",
			fmt.Sprintf("audio is %d bytes; the limit is %d", size, p.MaxBytes), nil)
	}
	normalized := normalizeContentType(contentType)
	if !slices.Contains(p.AllowedTypes, normalized) {
		return "", services.Wrap(services.ErrValidation, "ingress", "",
			fmt.Sprintf("invalid file type %q; allowed: %s", contentType, strings.Join(p.AllowedTypes, ", ")), nil)
	}
	return normalized, nil
}

func normalizeContentType(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if mediaType, _, err := mime.ParseMediaType(value); err == nil {
		value = mediaType
	}
	if alias, ok := contentTypeAliases[value]; ok {
		return alias
	}
	return value
}
