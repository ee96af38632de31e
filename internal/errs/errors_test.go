package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	assert.Equal(t, "[invalid_command] command text is empty", New(ErrKindInvalidCommand, "command text is empty").Error())

	cause := errors.New("boom")
	assert.Equal(t, "[timeout] ping failed: boom", Wrap(ErrKindTimeout, "ping failed", cause).Error())
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{"invalid command", New(ErrKindInvalidCommand, "x"), IsInvalidCommand},
		{"parameter shape", New(ErrKindUnsupportedParameterShape, "x"), IsUnsupportedParameterShape},
		{"conversion", New(ErrKindConversion, "x"), IsConversion},
		{"row mapping", RowMapping("age", "User.Age", errors.New("x")), IsRowMapping},
		{"invalid target", New(ErrKindInvalidTarget, "x"), IsInvalidTarget},
		{"wrapped", fmt.Errorf("ctx: %w", New(ErrKindNotFound, "x")), IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.pred(tt.err))
		})
	}
}

func TestIsRejected(t *testing.T) {
	assert.True(t, IsRejected(New(ErrKindInvalidTarget, "x")))
	assert.True(t, IsRejected(New(ErrKindInvalidInput, "x")))
	assert.False(t, IsRejected(Wrap(ErrKindConnectionFailed, "x", errors.New("y"))))
	assert.False(t, IsRejected(errors.New("native driver error")))
	assert.False(t, IsRejected(nil))
}

func TestRowMapping_NamesColumnAndField(t *testing.T) {
	err := RowMapping("created_at", "Account.CreatedAt", New(ErrKindConversion, "bad time"))

	var rm *RowMappingError
	require.True(t, errors.As(err, &rm))
	assert.Equal(t, "created_at", rm.Column)
	assert.Equal(t, "Account.CreatedAt", rm.Field)
	assert.Contains(t, err.Error(), `column "created_at" -> field Account.CreatedAt`)
}
