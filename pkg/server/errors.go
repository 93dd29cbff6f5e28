package server

import (
	stderrors "errors"
	"net/http"

	"github.com/vango-dev/smarthttp/internal/errors"
	"github.com/vango-dev/smarthttp/pkg/session"
)

var statusByCode = map[string]int{
	"E300": http.StatusBadRequest,
	"E301": http.StatusMethodNotAllowed,
	"E302": http.StatusHTTPVersionNotSupported,
	"E303": http.StatusBadRequest,
	"E304": http.StatusRequestHeaderFieldsTooLarge,
	"E305": http.StatusBadRequest,
	"E400": http.StatusNotFound,
	"E401": http.StatusForbidden,
	"E402": http.StatusNotFound,
	"E403": http.StatusNotFound,
}

// StatusOf maps an error to the response status sent for it. Script
// errors and unknown errors are 500.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if stderrors.Is(err, session.ErrManagerStopped) {
		return http.StatusServiceUnavailable
	}
	if status, ok := statusByCode[errors.Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
