package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/vango-dev/smarthttp/pkg/docroot"
	"github.com/vango-dev/smarthttp/pkg/httpctx"
	"github.com/vango-dev/smarthttp/pkg/session"
	"github.com/vango-dev/smarthttp/pkg/workers"
)

var testFiles = map[string]string{
	"index.html":               `<h1>hi</h1>`,
	"data.bin":                 "\x00\x01\x02",
	"README":                   "plain",
	"loop.smscr":               `{$ FOR i 1 3 $}{$= i $}{$END$}`,
	"bad.smscr":                `{$ FOR i 1 3 $}never closed`,
	"runtime.smscr":            `x{$= "a" 1 + $}`,
	"counter.smscr":            `{$= "n" "0" @pparamGet 1 + "n" @pparamSet "n" "0" @pparamGet $}`,
	"calc.smscr":               `{$= "a" "1" @paramGet $}`,
	"private/pages/calc.smscr": `{$= "varA" "?" @tparamGet " + " "varB" "?" @tparamGet " = " "zbroj" "?" @tparamGet $}`,
	"private/pages/home.smscr": `bg={$= "background" "" @tparamGet $}`,
	"private/secret.html":      "secret",
	"png.smscr":                `{$= "image/png" @setMimeType $}PNG`,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	dir := t.TempDir()
	for name, content := range testFiles {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	root, err := docroot.NewDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	sessions := session.NewManager(nil, session.Config{Timeout: time.Minute}, discardLogger())
	t.Cleanup(func() { sessions.Shutdown(context.Background()) })

	registry := workers.Default()
	if err := registry.BindAll(map[string]string{
		"/hello": "HelloWorker",
		"/calc":  "SumWorker",
		"/home":  "Home",
	}); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Domain = "www.localhost.com"
	cfg.MimeTypes = map[string]string{"html": "text/html", "PNG": "image/png"}

	opts = append([]Option{WithRegistry(registry), WithLogger(discardLogger())}, opts...)
	return New(cfg, root, sessions, opts...)
}

type response struct {
	status  int
	line    string
	headers []string
	body    string
}

func (r response) header(name string) string {
	prefix := name + ": "
	for _, h := range r.headers {
		if strings.HasPrefix(h, prefix) {
			return strings.TrimPrefix(h, prefix)
		}
	}
	return ""
}

func parseResponse(t *testing.T, raw string) response {
	t.Helper()
	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	if !ok {
		t.Fatalf("no header terminator in %q", raw)
	}
	lines := strings.Split(head, "\r\n")
	var r response
	r.line = lines[0]
	if _, err := fmt.Sscanf(lines[0], "HTTP/1.1 %d", &r.status); err != nil {
		t.Fatalf("bad status line %q", lines[0])
	}
	r.headers = lines[1:]
	r.body = body
	return r
}

// roundTrip serves raw on one end of a pipe and returns the response.
func roundTrip(t *testing.T, s *Server, raw string) response {
	t.Helper()
	client, conn := net.Pipe()
	done := make(chan struct{})
	go func() {
		s.serveConn(context.Background(), conn)
		close(done)
	}()
	go client.Write([]byte(raw))

	out, _ := io.ReadAll(client)
	client.Close()
	<-done
	return parseResponse(t, string(out))
}

func get(t *testing.T, s *Server, target string, headers ...string) response {
	t.Helper()
	raw := "GET " + target + " HTTP/1.1\r\nHost: www.localhost.com\r\n"
	for _, h := range headers {
		raw += h + "\r\n"
	}
	return roundTrip(t, s, raw+"\r\n")
}

var sidPattern = regexp.MustCompile(`sid="([A-Z]+)"`)

func sessionID(t *testing.T, r response) string {
	t.Helper()
	m := sidPattern.FindStringSubmatch(r.header("Set-Cookie"))
	if m == nil {
		t.Fatalf("no session cookie in %v", r.headers)
	}
	return m[1]
}

func TestServer_StaticFile(t *testing.T) {
	s := newTestServer(t)
	r := get(t, s, "/index.html")

	if r.line != "HTTP/1.1 200 OK" {
		t.Errorf("status line = %q", r.line)
	}
	if r.headers[0] != "Content-Type: text/html; charset=UTF-8" {
		t.Errorf("first header = %q", r.headers[0])
	}
	if got := r.header("Content-Length"); got != "11" {
		t.Errorf("Content-Length = %q, want 11", got)
	}
	if r.body != "<h1>hi</h1>" {
		t.Errorf("body = %q", r.body)
	}

	cookie := r.header("Set-Cookie")
	for _, part := range []string{"Domain=www.localhost.com", "Path=/", "Max-Age=60", "HttpOnly"} {
		if !strings.Contains(cookie, part) {
			t.Errorf("Set-Cookie = %q, missing %q", cookie, part)
		}
	}
}

func TestServer_MimeTypes(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		path string
		want string
	}{
		{"/data.bin", "application/octet-stream"},
		{"/README", "application/octet-stream"},
		{"/index.html", "text/html; charset=UTF-8"},
	}
	for _, tt := range tests {
		r := get(t, s, tt.path)
		if got := r.header("Content-Type"); got != tt.want {
			t.Errorf("%s Content-Type = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestServer_Errors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		path   string
		status int
	}{
		{"/missing.html", http.StatusNotFound},
		{"/missing.smscr", http.StatusNotFound},
		{"/", http.StatusNotFound},
		{"/../etc/passwd", http.StatusForbidden},
		{"/%2e%2e/etc/passwd", http.StatusForbidden},
		{"/private/secret.html", http.StatusNotFound},
		{"/private/pages/calc.smscr", http.StatusNotFound},
		{"/./private/secret.html", http.StatusNotFound},
		{"/x/../private/secret.html", http.StatusNotFound},
		{"/%70rivate/secret.html", http.StatusNotFound},
		{"/bad.smscr", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		r := get(t, s, tt.path)
		if r.status != tt.status {
			t.Errorf("GET %s status = %d, want %d", tt.path, r.status, tt.status)
		}
		if strings.Contains(r.body, "secret") || strings.Contains(r.body, "smscr") || strings.Contains(r.body, "/tmp") {
			t.Errorf("GET %s body leaks a path: %q", tt.path, r.body)
		}
	}
}

func TestServer_ProtocolErrors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		raw  string
		line string
	}{
		{"POST / HTTP/1.1\r\n\r\n", "HTTP/1.1 405 Method Not Allowed"},
		{"GET / HTTP/3\r\n\r\n", "HTTP/1.1 505 HTTP Version Not Supported"},
		{"garbage\r\n\r\n", "HTTP/1.1 400 Bad Request"},
	}
	for _, tt := range tests {
		r := roundTrip(t, s, tt.raw)
		if r.line != tt.line {
			t.Errorf("%q: status line = %q, want %q", tt.raw, r.line, tt.line)
		}
		if r.header("Set-Cookie") != "" {
			t.Errorf("%q: protocol error should not mint a session", tt.raw)
		}
	}
}

func TestServer_Scripts(t *testing.T) {
	s := newTestServer(t)

	if r := get(t, s, "/loop.smscr"); r.body != "123" {
		t.Errorf("loop body = %q, want 123", r.body)
	}
	if r := get(t, s, "/calc.smscr?a=41"); r.body != "41" {
		t.Errorf("param body = %q, want 41", r.body)
	}

	r := get(t, s, "/png.smscr")
	if got := r.header("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", got)
	}
	if r.body != "PNG" {
		t.Errorf("body = %q, want PNG", r.body)
	}
}

func TestServer_RuntimeErrorKeepsOutput(t *testing.T) {
	s := newTestServer(t)
	r := get(t, s, "/runtime.smscr")
	if r.status != http.StatusOK {
		t.Errorf("status = %d, want 200 (header already sent)", r.status)
	}
	if r.body != "x" {
		t.Errorf("body = %q, want x", r.body)
	}
}

func TestServer_Workers(t *testing.T) {
	s := newTestServer(t)

	r := get(t, s, "/hello?name=Ivana")
	if !strings.Contains(r.body, "Your name has 5 letters.") {
		t.Errorf("/hello body = %q", r.body)
	}

	r = get(t, s, "/ext/EchoParams?k=v")
	if !strings.Contains(r.body, "<td>k</td><td>v</td>") {
		t.Errorf("/ext/EchoParams body = %q", r.body)
	}

	r = get(t, s, "/ext/Missing")
	if r.status != http.StatusNotFound {
		t.Errorf("/ext/Missing status = %d, want 404", r.status)
	}
}

func TestServer_InternalDispatchReachesPrivate(t *testing.T) {
	s := newTestServer(t)

	if r := get(t, s, "/calc"); r.body != "1 + 2 = 3" {
		t.Errorf("/calc body = %q, want %q", r.body, "1 + 2 = 3")
	}
	if r := get(t, s, "/calc?a=5&b=6"); r.body != "5 + 6 = 11" {
		t.Errorf("/calc body = %q, want %q", r.body, "5 + 6 = 11")
	}
}

func TestServer_SessionPersistence(t *testing.T) {
	s := newTestServer(t)

	first := get(t, s, "/counter.smscr")
	if first.body != "1" {
		t.Fatalf("first body = %q, want 1", first.body)
	}
	sid := sessionID(t, first)

	second := get(t, s, "/counter.smscr", `Cookie: sid="`+sid+`"`)
	if second.body != "2" {
		t.Errorf("second body = %q, want 2", second.body)
	}
	if second.header("Set-Cookie") != "" {
		t.Errorf("valid session got a new cookie: %q", second.header("Set-Cookie"))
	}

	// no cookie: a distinct session
	other := get(t, s, "/counter.smscr")
	if other.body != "1" {
		t.Errorf("other body = %q, want 1", other.body)
	}
	if sessionID(t, other) == sid {
		t.Error("two cookie-less requests share a session id")
	}
}

func TestServer_SessionHostMismatch(t *testing.T) {
	s := newTestServer(t)
	sid := sessionID(t, get(t, s, "/counter.smscr"))

	raw := "GET /counter.smscr HTTP/1.1\r\nHost: evil.example\r\nCookie: sid=" + sid + "\r\n\r\n"
	r := roundTrip(t, s, raw)
	if r.body != "1" {
		t.Errorf("body = %q, want a fresh session", r.body)
	}
	if newID := sessionID(t, r); newID == sid {
		t.Error("session reused across hosts")
	}
	if !strings.Contains(r.header("Set-Cookie"), "Domain=evil.example") {
		t.Errorf("Set-Cookie = %q, want Domain=evil.example", r.header("Set-Cookie"))
	}
}

func TestServer_DefaultDomain(t *testing.T) {
	s := newTestServer(t)
	r := roundTrip(t, s, "GET /index.html HTTP/1.0\r\n\r\n")
	if !strings.Contains(r.header("Set-Cookie"), "Domain=www.localhost.com") {
		t.Errorf("Set-Cookie = %q, want the configured domain", r.header("Set-Cookie"))
	}
}

func TestServer_HomeUsesPersistentColor(t *testing.T) {
	s := newTestServer(t)
	first := get(t, s, "/home")
	if first.body != "bg=7F7F7F" {
		t.Errorf("body = %q, want bg=7F7F7F", first.body)
	}
	sid := sessionID(t, first)

	get(t, s, "/ext/BgColorWorker?bgcolor=00AA00", "Cookie: sid="+sid)
	if r := get(t, s, "/home", "Cookie: sid="+sid); r.body != "bg=00AA00" {
		t.Errorf("body = %q, want bg=00AA00", r.body)
	}
}

func TestServer_Middleware(t *testing.T) {
	var order []string
	var kinds []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ex *Exchange) error {
				order = append(order, name+">")
				err := next(ex)
				order = append(order, "<"+name)
				if name == "outer" {
					kinds = append(kinds, fmt.Sprintf("%s:%d", ex.Kind, ex.Status()))
				}
				return err
			}
		}
	}

	s := newTestServer(t, WithMiddleware(mw("outer")))
	s.Use(mw("inner"))

	get(t, s, "/index.html")
	get(t, s, "/private/secret.html")
	get(t, s, "/calc")
	get(t, s, "/bad.smscr")

	if got := strings.Join(order[:4], " "); got != "outer> inner> <inner <outer" {
		t.Errorf("order = %q", got)
	}
	want := []string{"static:200", "private:404", "worker:200", "script:500"}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Errorf("kinds = %v, want %v", kinds, want)
	}
}

type traceKey struct{}

func TestServer_MiddlewareContextReachesHandlers(t *testing.T) {
	tag := func(next Handler) Handler {
		return func(ex *Exchange) error {
			ex.Ctx = context.WithValue(ex.Ctx, traceKey{}, "span-1")
			return next(ex)
		}
	}
	s := newTestServer(t, WithMiddleware(tag))
	s.registry.Register("CtxWorker", workers.WorkerFunc(func(rc *httpctx.RequestContext) error {
		v, _ := rc.Context().Value(traceKey{}).(string)
		_, err := rc.WriteString(v)
		return err
	}))
	if err := s.registry.Bind("/ctx", "CtxWorker"); err != nil {
		t.Fatal(err)
	}

	if r := get(t, s, "/ctx"); r.body != "span-1" {
		t.Errorf("body = %q, want span-1", r.body)
	}
}

func TestServer_DevScriptInjection(t *testing.T) {
	s := newTestServer(t)
	s.config.DevScriptURL = "http://localhost:9090/_dev/client.js"
	tag := `<script src="http://localhost:9090/_dev/client.js"></script>`

	tests := []struct {
		target string
		want   string
	}{
		{"/loop.smscr", "123" + tag},
		{"/png.smscr", "PNG"},
		{"/index.html", "<h1>hi</h1>"},
		{"/home", "bg=7F7F7F"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if r := get(t, s, tt.target); r.body != tt.want {
				t.Errorf("body = %q, want %q", r.body, tt.want)
			}
		})
	}

	if r := get(t, s, "/bad.smscr"); strings.Contains(r.body, "<script") {
		t.Errorf("error page carries reload script: %q", r.body)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s := newTestServer(t)
	s.config.Workers = 2

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	addr := ln.Addr().String()
	var wg sync.WaitGroup
	failures := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := net.Dial("tcp", addr)
			if err != nil {
				failures <- err.Error()
				return
			}
			defer c.Close()
			fmt.Fprintf(c, "GET /loop.smscr HTTP/1.1\r\nHost: localhost\r\n\r\n")
			out, _ := io.ReadAll(c)
			if !strings.HasSuffix(string(out), "\r\n\r\n123") {
				failures <- string(out)
			}
		}()
	}
	wg.Wait()
	close(failures)
	for f := range failures {
		t.Errorf("request failed: %q", f)
	}

	if s.Addr() == nil {
		t.Error("Addr() = nil while serving")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case err := <-errCh:
		if err != ErrServerClosed {
			t.Errorf("Serve() = %v, want ErrServerClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	if err := s.Serve(ln); err != ErrServerClosed {
		t.Errorf("Serve() after Shutdown = %v, want ErrServerClosed", err)
	}
	if _, _, err := s.Sessions().Resolve(context.Background(), "", "localhost"); err != session.ErrManagerStopped {
		t.Errorf("Resolve() after Shutdown = %v, want ErrManagerStopped", err)
	}
}

// flakyListener fails its first accepts with the given error.
type flakyListener struct {
	net.Listener
	mu    sync.Mutex
	fails int
	err   error
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.fails > 0 {
		l.fails--
		l.mu.Unlock()
		return nil, l.err
	}
	l.mu.Unlock()
	return l.Listener.Accept()
}

func TestServer_AcceptRetriesTransientErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		survive bool
	}{
		{"too many open files", &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept", syscall.EMFILE)}, true},
		{"timeout", os.ErrDeadlineExceeded, true},
		{"permanent", stderrors.New("listener broken"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			inner, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatal(err)
			}
			ln := &flakyListener{Listener: inner, fails: 3, err: tt.err}
			errCh := make(chan error, 1)
			go func() { errCh <- s.Serve(ln) }()
			defer s.Shutdown(context.Background())

			if !tt.survive {
				select {
				case err := <-errCh:
					if err != tt.err {
						t.Errorf("Serve() = %v, want %v", err, tt.err)
					}
				case <-time.After(2 * time.Second):
					t.Fatal("Serve kept running after a permanent error")
				}
				return
			}

			c, err := net.Dial("tcp", inner.Addr().String())
			if err != nil {
				t.Fatal(err)
			}
			defer c.Close()
			c.SetDeadline(time.Now().Add(5 * time.Second))
			fmt.Fprintf(c, "GET /loop.smscr HTTP/1.1\r\nHost: localhost\r\n\r\n")
			out, _ := io.ReadAll(c)
			if !strings.HasSuffix(string(out), "\r\n\r\n123") {
				t.Errorf("response = %q", out)
			}
		})
	}
}

func TestServer_ClosedBeforeRequest(t *testing.T) {
	s := newTestServer(t)
	client, conn := net.Pipe()
	done := make(chan struct{})
	go func() {
		s.serveConn(context.Background(), conn)
		close(done)
	}()
	client.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serveConn did not return on a closed connection")
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(nil); got != http.StatusOK {
		t.Errorf("StatusOf(nil) = %d", got)
	}
	if got := StatusOf(session.ErrManagerStopped); got != http.StatusServiceUnavailable {
		t.Errorf("StatusOf(ErrManagerStopped) = %d", got)
	}
	if got := StatusOf(io.ErrUnexpectedEOF); got != http.StatusInternalServerError {
		t.Errorf("StatusOf(other) = %d", got)
	}
}
