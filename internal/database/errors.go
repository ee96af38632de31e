package database

import (
	"fmt"

	"github.com/koustreak/dataconn/internal/errs"
)

// --- Constructor helpers for rejections raised by this package ---

func errInvalidInput(msg string) *errs.Error {
	return errs.New(errs.ErrKindInvalidInput, msg)
}

func errClosed() *errs.Error {
	return errs.New(errs.ErrKindInvalidInput, "connection is closed")
}

func errInvalidCommand(msg string) *errs.Error {
	return errs.New(errs.ErrKindInvalidCommand, msg)
}

func errUnsupportedShape(v any) *errs.Error {
	return errs.Newf(errs.ErrKindUnsupportedParameterShape, "cannot build parameters from %T", v)
}

func errConversion(v any, to fmt.Stringer, cause error) *errs.Error {
	msg := fmt.Sprintf("cannot convert %T to %s", v, to)
	if cause != nil {
		return errs.Wrap(errs.ErrKindConversion, msg, cause)
	}
	return errs.New(errs.ErrKindConversion, msg)
}

func errInvalidTarget(msg string) *errs.Error {
	return errs.New(errs.ErrKindInvalidTarget, msg)
}
