package apperr

import (
	"errors"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsMatchesCodeOnly(t *testing.T) {
	err := pkgerrors.Wrap(ErrNoCopies("book 3 has no copies left"), "reserve")
	assert.True(t, errors.Is(err, NoCopiesAvailable))
	assert.False(t, errors.Is(err, NotFound))
	assert.Equal(t, CodeNoCopiesAvailable, CodeOf(err))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrInvalid("x"):         http.StatusBadRequest,
		ErrUnauthenticated("x"): http.StatusUnauthorized,
		ErrForbidden("x"):       http.StatusForbidden,
		ErrNotFound("x"):        http.StatusNotFound,
		ErrNoCopies("x"):        http.StatusConflict,
		ErrAlreadyReturned("x"): http.StatusConflict,
		ErrRenewNotAllowed("x"): http.StatusConflict,
		ErrMemberInactive("x"):  http.StatusUnprocessableEntity,
		ErrInconsistent("x"):    http.StatusInternalServerError,
		errors.New("boom"):      http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(err), err.Error())
	}
}

func TestFromErrHidesInternalDetail(t *testing.T) {
	b := FromErr(errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	assert.Equal(t, CodeInternal, b.Error.Code)
	assert.Equal(t, "internal error", b.Error.Message)

	b = FromErr(ErrAlreadyReturned("loan 01H already returned"))
	assert.Equal(t, CodeAlreadyReturned, b.Error.Code)
	assert.Equal(t, "loan 01H already returned", b.Error.Message)
}
