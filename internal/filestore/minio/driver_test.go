package minio

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/koustreak/dataconn/internal/errs"
	"github.com/koustreak/dataconn/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
	}{
		{"missing key", miniogo.ErrorResponse{Code: "NoSuchKey"}, errs.ErrKindNotFound},
		{"missing bucket", miniogo.ErrorResponse{Code: "NoSuchBucket"}, errs.ErrKindNotFound},
		{"bad signature", miniogo.ErrorResponse{Code: "SignatureDoesNotMatch"}, errs.ErrKindPermissionDenied},
		{"bad name", miniogo.ErrorResponse{Code: "InvalidObjectName"}, errs.ErrKindInvalidInput},
		{"throttled", miniogo.ErrorResponse{Code: "SlowDown"}, errs.ErrKindTimeout},
		{"status 404", miniogo.ErrorResponse{StatusCode: http.StatusNotFound}, errs.ErrKindNotFound},
		{"status 403", miniogo.ErrorResponse{StatusCode: http.StatusForbidden}, errs.ErrKindPermissionDenied},
		{"status 400", miniogo.ErrorResponse{StatusCode: http.StatusBadRequest}, errs.ErrKindInvalidInput},
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"network", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "get object")
			require.NotNil(t, got)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.err, got.Cause)
		})
	}
	assert.Nil(t, mapError(nil, "x"))
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.True(t, errs.IsInvalidInput(err))

	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
	_, err = New(context.Background(), cfg)
	assert.True(t, errs.IsInvalidInput(err), "bucket is required")

	cfg.Bucket = "exports"
	cfg.Provider = "s3"
	_, err = New(context.Background(), cfg)
	assert.True(t, errs.IsInvalidInput(err))
}
