// Package ingest bulk loads newline-delimited JSON files from object storage
// into mapped tables.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/koustreak/dataconn/internal/database"
	"github.com/koustreak/dataconn/internal/errs"
	"github.com/koustreak/dataconn/internal/filestore"
	"github.com/koustreak/dataconn/internal/logger"
)

// maxLine bounds a single NDJSON record.
const maxLine = 16 << 20

// Loader reads objects from one bucket.
type Loader struct {
	store  filestore.Store
	bucket string
	log    *logger.Logger
}

// NewLoader returns a loader over bucket. A nil log discards output.
func NewLoader(store filestore.Store, bucket string, log *logger.Logger) (*Loader, error) {
	if store == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "store is nil")
	}
	if bucket == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "bucket is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{store: store, bucket: bucket, log: log}, nil
}

// Load streams the NDJSON object at key into table. Records are decoded
// lazily as the bulk copy consumes them. A malformed line ends the source;
// records decoded before it have already been handed to the copy and the
// decode error is returned alongside the partial result.
func Load[T any](ctx context.Context, l *Loader, table *database.Table[T], key string, opts database.BulkCopyOptions) (*database.BulkCopyRowsCopied, error) {
	if l == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "loader is nil")
	}
	obj, err := l.store.GetObject(ctx, l.bucket, key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	source, decodeErr := Decode[T](obj)
	res, err := table.BulkCopy(ctx, opts, source)
	if err != nil {
		return res, err
	}
	if err := decodeErr(); err != nil {
		return res, fmt.Errorf("decode %s: %w", key, err)
	}

	l.log.InfoWith("object loaded", map[string]any{
		"bucket": l.bucket,
		"key":    key,
		"table":  table.Identity().String(),
		"rows":   res.RowsCopied,
	})
	return res, nil
}

// LoadPrefix loads every object under prefix, in key order, and returns the
// total number of rows copied. It stops at the first failing object.
func LoadPrefix[T any](ctx context.Context, l *Loader, table *database.Table[T], prefix string, opts database.BulkCopyOptions) (int64, error) {
	if l == nil {
		return 0, errs.New(errs.ErrKindInvalidInput, "loader is nil")
	}
	var total int64
	for info, err := range l.store.Objects(ctx, l.bucket, filestore.ListOptions{Prefix: prefix, Recursive: true}) {
		if err != nil {
			return total, err
		}
		res, err := Load(ctx, l, table, info.Key, opts)
		if res != nil {
			total += res.RowsCopied
		}
		if err != nil {
			return total, err
		}
		if res != nil && res.Abort {
			break
		}
	}
	return total, nil
}

// Decode returns a single-pass sequence of the NDJSON records in r. Blank
// lines are skipped. The returned func reports the error that ended the
// sequence early, if any, once iteration is over.
func Decode[T any](r io.Reader) (iter.Seq[T], func() error) {
	var decodeErr error
	seq := func(yield func(T) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64<<10), maxLine)
		line := 0
		for sc.Scan() {
			line++
			b := sc.Bytes()
			if len(bytes.TrimSpace(b)) == 0 {
				continue
			}
			var v T
			if err := json.Unmarshal(b, &v); err != nil {
				decodeErr = errs.Wrap(errs.ErrKindConversion, fmt.Sprintf("line %d", line), err)
				return
			}
			if !yield(v) {
				return
			}
		}
		if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
			decodeErr = err
		}
	}
	return seq, func() error { return decodeErr }
}
