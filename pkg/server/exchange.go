package server

import (
	"context"
	"time"

	"github.com/vango-dev/smarthttp/pkg/httpctx"
	"github.com/vango-dev/smarthttp/pkg/session"
)

// Dispatch kinds recorded on an Exchange.
const (
	KindStatic  = "static"
	KindScript  = "script"
	KindWorker  = "worker"
	KindPrivate = "private"
)

// Exchange is one request and its response in flight.
type Exchange struct {
	// Ctx carries request-scoped values such as a trace span. Middleware
	// may replace it before calling the next handler.
	Ctx context.Context

	Request *Request

	// Session is the resolved session; NewSession is set when it was
	// minted for this request.
	Session    *session.Session
	NewSession bool

	// RC writes the response.
	RC *httpctx.RequestContext

	// Kind is how the top-level path was dispatched.
	Kind string

	Start time.Time
}

// Status returns the response status as it stands.
func (ex *Exchange) Status() int {
	return ex.RC.StatusCode()
}

// Handler serves an exchange. A returned error is logged; if the header
// is not yet sent an error page has been written for it.
type Handler func(ex *Exchange) error

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// chain applies middleware so the first one added runs outermost.
func chain(h Handler, mws []Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
