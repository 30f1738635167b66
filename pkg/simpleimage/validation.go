package simpleimage

import (
	"fmt"
	"mime"
	"slices"
	"strings"
)

// UploadCandidate describes an upload as seen by the boundary layer, before
// any content is read.
type UploadCandidate struct {
	Present     bool
	FileName    string
	ContentType string
	Size        int64
}

// UploadValidator checks uploads against an allow-list of content types. It
// runs before the service is invoked; the service itself does not validate
// content types.
type UploadValidator struct {
	AllowedContentTypes []string
}

// NewUploadValidator creates a validator for the given allow-list.
func NewUploadValidator(allowed []string) *UploadValidator {
	return &UploadValidator{AllowedContentTypes: slices.Clone(allowed)}
}

// Validate returns an error wrapping ErrValidationRejected when the upload
// is missing, empty, untyped, or of a type outside the allow-list.
func (v *UploadValidator) Validate(c UploadCandidate) error {
	if !c.Present {
		return fmt.Errorf("%w: no file payload", ErrValidationRejected)
	}
	if c.Size <= 0 {
		return fmt.Errorf("%w: file is empty", ErrValidationRejected)
	}
	ct := baseContentType(c.ContentType)
	if ct == "" {
		return fmt.Errorf("%w: content type is missing", ErrValidationRejected)
	}
	if !v.Allowed(ct) {
		return fmt.Errorf("%w: content type %q is not supported", ErrValidationRejected, ct)
	}
	return nil
}

// Allowed reports whether contentType is in the allow-list.
func (v *UploadValidator) Allowed(contentType string) bool {
	return slices.Contains(v.AllowedContentTypes, baseContentType(contentType))
}

// baseContentType strips parameters such as "; charset=utf-8".
func baseContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return contentType
}
