package simpleimage

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the service. Every failure returned by Service
// matches exactly one of these through errors.Is.
var (
	// ErrValidationRejected indicates the upload input was rejected
	ErrValidationRejected = errors.New("validation rejected")

	// ErrStorageAccessDenied indicates the blob store refused access to the bucket
	ErrStorageAccessDenied = errors.New("storage access denied")

	// ErrBucketNotFound indicates the target bucket could not be found
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrStorageUnavailable indicates the bucket precondition could not be checked or satisfied
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrUploadFailed indicates the blob write failed
	ErrUploadFailed = errors.New("upload failed")

	// ErrImageNotFound indicates no metadata record exists for the given id
	ErrImageNotFound = errors.New("image not found")

	// ErrDeleteFailed indicates the blob delete failed during image deletion
	ErrDeleteFailed = errors.New("delete failed")

	// ErrDownloadFailed indicates the blob read failed
	ErrDownloadFailed = errors.New("download failed")

	// ErrInternal indicates any other failure, such as an unavailable metadata store
	ErrInternal = errors.New("internal error")
)

// Store errors. Blob and metadata store drivers wrap their native errors with
// these so the service can classify failures without knowing the driver.
var (
	// ErrAccessDenied indicates the store rejected the credentials or permissions
	ErrAccessDenied = errors.New("access denied")

	// ErrNoSuchBucket indicates the bucket does not exist
	ErrNoSuchBucket = errors.New("no such bucket")

	// ErrBucketAlreadyExists indicates a bucket create lost a race or was redundant
	ErrBucketAlreadyExists = errors.New("bucket already exists")

	// ErrObjectNotFound indicates no blob exists under the key
	ErrObjectNotFound = errors.New("object not found")

	// ErrRecordNotFound indicates no metadata record exists under the key
	ErrRecordNotFound = errors.New("record not found")
)

// ImageError represents a failed image operation. Kind is one of the error
// kinds above; Err is the underlying store error, if any.
type ImageError struct {
	Op      string
	ImageID string
	Kind    error
	Err     error
}

func (e *ImageError) Error() string {
	msg := fmt.Sprintf("image operation %s failed", e.Op)
	if e.ImageID != "" {
		msg += " for image " + e.ImageID
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ImageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op, id string, kind, err error) *ImageError {
	return &ImageError{Op: op, ImageID: id, Kind: kind, Err: err}
}

// KindOf returns the error kind carried by err, or ErrInternal when err
// carries none. It returns nil for a nil error.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		ErrValidationRejected,
		ErrImageNotFound,
		ErrStorageAccessDenied,
		ErrBucketNotFound,
		ErrStorageUnavailable,
		ErrUploadFailed,
		ErrDeleteFailed,
		ErrDownloadFailed,
		ErrInternal,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}

// RootCause returns the innermost error of the chain. For an ImageError the
// store cause is followed rather than the kind.
func RootCause(err error) error {
	for err != nil {
		var next error
		switch e := err.(type) {
		case *ImageError:
			next = e.Err
		case interface{ Unwrap() error }:
			next = e.Unwrap()
		case interface{ Unwrap() []error }:
			if errs := e.Unwrap(); len(errs) > 0 {
				next = errs[len(errs)-1]
			}
		}
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}
