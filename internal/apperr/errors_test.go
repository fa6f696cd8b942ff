package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReAuthRequiredMatchesAuth(t *testing.T) {
	err := fmt.Errorf("owner 7: %w", ErrReAuthRequired)

	assert.True(t, errors.Is(err, ErrReAuthRequired))
	assert.True(t, errors.Is(err, ErrAuth))
	assert.True(t, NeedsReAuth(err))
	assert.Equal(t, "reauth_required", Kind(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("list: %w", ErrAuth), http.StatusUnauthorized},
		{fmt.Errorf("list: %w", ErrPermission), http.StatusForbidden},
		{fmt.Errorf("list: %w", ErrTransport), http.StatusBadGateway},
		{fmt.Errorf("id: %w", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("item: %w", ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestKindNil(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.False(t, NeedsReAuth(nil))
}
