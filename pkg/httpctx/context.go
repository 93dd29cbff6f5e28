// Package httpctx provides the response and request context handed to
// workers and scripts.
//
// A RequestContext buffers the status line, content type, length, and
// cookies until the first write. That write serializes the header; from
// then on the header fields are frozen and every setter returns
// ErrHeaderSent.
package httpctx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// ErrHeaderSent is returned by any header mutation after the first write.
var ErrHeaderSent = errors.New("httpctx: header already sent")

// ErrNoDispatcher is returned by Dispatch when no dispatcher was configured.
var ErrNoDispatcher = errors.New("httpctx: no dispatcher")

// Defaults applied by New.
const (
	DefaultEncoding = "UTF-8"
	DefaultMimeType = "text/html"
)

// Cookie is an outgoing Set-Cookie entry. Empty Domain and Path and a zero
// MaxAge are omitted from the header.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	MaxAge   int
	HttpOnly bool
}

// String renders the cookie as a Set-Cookie header value.
func (c Cookie) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteString(`="`)
	b.WriteString(c.Value)
	b.WriteByte('"')
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.MaxAge != 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	return b.String()
}

// Params is a concurrency-safe string map shared across requests, such as
// a session's persistent parameters.
type Params interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	Keys() []string
}

// Dispatcher re-enters the server's path dispatch for an internal request.
// Internal dispatch may reach private paths.
type Dispatcher interface {
	Dispatch(ctx context.Context, path string, rc *RequestContext) error
}

// RequestContext is the per-request response writer and parameter holder.
// It must not be shared between concurrent requests.
type RequestContext struct {
	w   io.Writer
	ctx context.Context

	encodingName  string
	encoding      encoding.Encoding
	statusCode    int
	statusText    string
	mimeType      string
	contentLength int64
	cookies       []Cookie
	headerSent    bool

	params     map[string]string
	persistent Params
	temporary  map[string]string
	dispatcher Dispatcher
}

// Option configures a RequestContext.
type Option func(*RequestContext)

// WithParams sets the read-only request parameters.
func WithParams(params map[string]string) Option {
	return func(rc *RequestContext) {
		rc.params = params
	}
}

// WithPersistent sets the session-persistent parameters.
func WithPersistent(p Params) Option {
	return func(rc *RequestContext) {
		rc.persistent = p
	}
}

// WithCookies queues outgoing cookies.
func WithCookies(cookies ...Cookie) Option {
	return func(rc *RequestContext) {
		rc.cookies = append(rc.cookies, cookies...)
	}
}

// WithDispatcher sets the dispatcher used by Dispatch.
func WithDispatcher(d Dispatcher) Option {
	return func(rc *RequestContext) {
		rc.dispatcher = d
	}
}

// WithContext sets the context passed to internal dispatches.
func WithContext(ctx context.Context) Option {
	return func(rc *RequestContext) {
		rc.ctx = ctx
	}
}

// New creates a context writing to w with status 200, text/html, UTF-8,
// and no content length.
func New(w io.Writer, opts ...Option) *RequestContext {
	rc := &RequestContext{
		w:             w,
		ctx:           context.Background(),
		encodingName:  DefaultEncoding,
		statusCode:    http.StatusOK,
		statusText:    http.StatusText(http.StatusOK),
		mimeType:      DefaultMimeType,
		contentLength: -1,
		temporary:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.params == nil {
		rc.params = map[string]string{}
	}
	return rc
}

// Context returns the context of the request.
func (rc *RequestContext) Context() context.Context {
	return rc.ctx
}

// SetContext replaces the context handed to internal dispatch. A nil ctx
// is ignored.
func (rc *RequestContext) SetContext(ctx context.Context) {
	if ctx != nil {
		rc.ctx = ctx
	}
}

// HeaderSent reports whether the header has been written.
func (rc *RequestContext) HeaderSent() bool { return rc.headerSent }

func (rc *RequestContext) Encoding() string   { return rc.encodingName }
func (rc *RequestContext) StatusCode() int    { return rc.statusCode }
func (rc *RequestContext) StatusText() string { return rc.statusText }
func (rc *RequestContext) MimeType() string   { return rc.mimeType }

// Cookies returns the queued outgoing cookies.
func (rc *RequestContext) Cookies() []Cookie {
	return append([]Cookie(nil), rc.cookies...)
}

// SetEncoding sets the charset used by WriteString and announced for text
// mime types. The name must be known to the WHATWG encoding index.
func (rc *RequestContext) SetEncoding(name string) error {
	if rc.headerSent {
		return ErrHeaderSent
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return fmt.Errorf("httpctx: unknown encoding %q: %w", name, err)
	}
	rc.encodingName = name
	rc.encoding = enc
	return nil
}

// SetStatusCode sets the status code and its standard reason phrase.
func (rc *RequestContext) SetStatusCode(code int) error {
	if rc.headerSent {
		return ErrHeaderSent
	}
	if code < 100 || code > 999 {
		return fmt.Errorf("httpctx: invalid status code %d", code)
	}
	rc.statusCode = code
	rc.statusText = http.StatusText(code)
	return nil
}

// SetStatusText overrides the reason phrase.
func (rc *RequestContext) SetStatusText(text string) error {
	if rc.headerSent {
		return ErrHeaderSent
	}
	rc.statusText = text
	return nil
}

// SetMimeType sets the Content-Type mime type.
func (rc *RequestContext) SetMimeType(mime string) error {
	if rc.headerSent {
		return ErrHeaderSent
	}
	rc.mimeType = mime
	return nil
}

// SetContentLength sets the Content-Length; a negative value omits it.
func (rc *RequestContext) SetContentLength(n int64) error {
	if rc.headerSent {
		return ErrHeaderSent
	}
	rc.contentLength = n
	return nil
}

// AddCookie queues an outgoing cookie.
func (rc *RequestContext) AddCookie(c Cookie) error {
	if rc.headerSent {
		return ErrHeaderSent
	}
	rc.cookies = append(rc.cookies, c)
	return nil
}

// Param returns a request parameter.
func (rc *RequestContext) Param(key string) (string, bool) {
	v, ok := rc.params[key]
	return v, ok
}

// ParamNames returns the request parameter names in sorted order.
func (rc *RequestContext) ParamNames() []string {
	names := make([]string, 0, len(rc.params))
	for k := range rc.params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// PersistentParam returns a session-persistent parameter.
func (rc *RequestContext) PersistentParam(key string) (string, bool) {
	if rc.persistent == nil {
		return "", false
	}
	return rc.persistent.Get(key)
}

// SetPersistentParam stores a session-persistent parameter. Without a
// session the call is a no-op.
func (rc *RequestContext) SetPersistentParam(key, value string) {
	if rc.persistent != nil {
		rc.persistent.Set(key, value)
	}
}

// DeletePersistentParam removes a session-persistent parameter.
func (rc *RequestContext) DeletePersistentParam(key string) {
	if rc.persistent != nil {
		rc.persistent.Delete(key)
	}
}

// TemporaryParam returns a parameter scoped to this request.
func (rc *RequestContext) TemporaryParam(key string) (string, bool) {
	v, ok := rc.temporary[key]
	return v, ok
}

// SetTemporaryParam stores a parameter scoped to this request.
func (rc *RequestContext) SetTemporaryParam(key, value string) {
	rc.temporary[key] = value
}

// DeleteTemporaryParam removes a parameter scoped to this request.
func (rc *RequestContext) DeleteTemporaryParam(key string) {
	delete(rc.temporary, key)
}

// Dispatch runs path through the server dispatcher using this context, so
// the temporary parameters carry over to the dispatched script or worker.
func (rc *RequestContext) Dispatch(path string) error {
	if rc.dispatcher == nil {
		return ErrNoDispatcher
	}
	return rc.dispatcher.Dispatch(rc.ctx, path, rc)
}

// Write writes body bytes, sending the header first if needed.
func (rc *RequestContext) Write(p []byte) (int, error) {
	if err := rc.writeHeader(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	return rc.w.Write(p)
}

// WriteString encodes s in the configured charset and writes it.
func (rc *RequestContext) WriteString(s string) (int, error) {
	if err := rc.writeHeader(); err != nil {
		return 0, err
	}
	if rc.encoding == nil || isUTF8(rc.encodingName) {
		return io.WriteString(rc.w, s)
	}
	encoded, err := rc.encoding.NewEncoder().String(s)
	if err != nil {
		return 0, fmt.Errorf("httpctx: encode as %s: %w", rc.encodingName, err)
	}
	return io.WriteString(rc.w, encoded)
}

// Flush sends the header if it has not been sent, then flushes the
// underlying writer when it supports flushing.
func (rc *RequestContext) Flush() error {
	if err := rc.writeHeader(); err != nil {
		return err
	}
	if f, ok := rc.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (rc *RequestContext) writeHeader() error {
	if rc.headerSent {
		return nil
	}
	rc.headerSent = true

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", rc.statusCode, rc.statusText)
	b.WriteString("Content-Type: ")
	b.WriteString(rc.mimeType)
	if strings.HasPrefix(rc.mimeType, "text/") {
		b.WriteString("; charset=")
		b.WriteString(rc.encodingName)
	}
	b.WriteString("\r\n")
	if rc.contentLength >= 0 {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", rc.contentLength)
	}
	for _, c := range rc.cookies {
		b.WriteString("Set-Cookie: ")
		b.WriteString(c.String())
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")

	_, err := io.WriteString(rc.w, b.String())
	return err
}

func isUTF8(name string) bool {
	n := strings.ToLower(name)
	return n == "utf-8" || n == "utf8"
}
