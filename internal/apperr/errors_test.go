package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"unauthorized", ErrUnauthorized, KindUnauthorized},
		{"not found", ErrNotFound, KindNotFound},
		{"validation", ErrMissingData, KindValidation},
		{"wrapped", fmt.Errorf("resolve: %w", ErrUnauthorized), KindUnauthorized},
		{"plain", errors.New("boom"), KindInternal},
		{"no record", ErrNoRecord, KindInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestMessage_HidesInternalDetail(t *testing.T) {
	assert.Equal(t, "Server error", Message(errors.New("dial tcp 10.0.0.1: refused")))
	assert.Equal(t, "Missing name", Message(fmt.Errorf("upload: %w", ErrMissingName)))
	assert.Equal(t, "Not found", Message(ErrNotFound))
}
