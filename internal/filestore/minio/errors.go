package minio

import (
	"context"
	"errors"
	"net/http"

	"github.com/koustreak/geori/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
)

// statusKinds maps HTTP status codes of S3 error responses to error kinds.
var statusKinds = map[int]errs.ErrKind{
	http.StatusNotFound:     errs.ErrKindNotFound,
	http.StatusForbidden:    errs.ErrKindPermissionDenied,
	http.StatusUnauthorized: errs.ErrKindPermissionDenied,
	http.StatusBadRequest:   errs.ErrKindInvalidInput,
}

// codeKinds maps S3 error codes, consulted when the status is not decisive.
var codeKinds = map[string]errs.ErrKind{
	"NoSuchBucket":          errs.ErrKindNotFound,
	"NoSuchKey":             errs.ErrKindNotFound,
	"AccessDenied":          errs.ErrKindPermissionDenied,
	"InvalidAccessKeyId":    errs.ErrKindPermissionDenied,
	"SignatureDoesNotMatch": errs.ErrKindPermissionDenied,
	"InvalidBucketName":     errs.ErrKindInvalidInput,
	"InvalidObjectName":     errs.ErrKindInvalidInput,
	"KeyTooLongError":       errs.ErrKindInvalidInput,
	"RequestTimeout":        errs.ErrKindTimeout,
	"SlowDown":              errs.ErrKindTimeout,
}

// mapError translates a MinIO SDK error into a *errs.Error, the same way the
// database handles translate driver errors. Unrecognised errors are treated
// as connection failures.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		if kind, ok := statusKinds[resp.StatusCode]; ok {
			return errs.Wrap(kind, msg, err)
		}
		if kind, ok := codeKinds[resp.Code]; ok {
			return errs.Wrap(kind, msg, err)
		}
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
