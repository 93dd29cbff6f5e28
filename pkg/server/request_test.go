package server

import (
	"bufio"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/vango-dev/smarthttp/internal/errors"
)

func readHead(raw string, max int) (*Request, error) {
	return ReadRequest(bufio.NewReader(strings.NewReader(raw)), max)
}

func TestReadRequest(t *testing.T) {
	raw := "GET /a/b.smscr?x=1&y=%20z&x=2&flag&=skip HTTP/1.1\r\n" +
		"Host: Example.COM:5721\r\n" +
		"Cookie: a=1; sid=\"ABCDEF\"\r\n" +
		"X-Long: first\r\n" +
		"\t second\r\n" +
		"  third\r\n" +
		"Accept: a\r\n" +
		"Accept: b\r\n" +
		"\r\n"

	req, err := readHead(raw, 4096)
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}

	if req.Method != "GET" || req.Version != "HTTP/1.1" {
		t.Errorf("request line = %q %q", req.Method, req.Version)
	}
	if req.Path != "/a/b.smscr" {
		t.Errorf("Path = %q, want /a/b.smscr", req.Path)
	}
	if req.Host != "example.com" {
		t.Errorf("Host = %q, want example.com", req.Host)
	}
	if got := req.Header["X-Long"]; got != "first second third" {
		t.Errorf("folded header = %q, want %q", got, "first second third")
	}
	if got := req.Header["Accept"]; got != "a, b" {
		t.Errorf("repeated header = %q, want %q", got, "a, b")
	}

	want := map[string]string{"x": "1", "y": " z", "flag": ""}
	if len(req.Params) != len(want) {
		t.Errorf("Params = %v, want %v", req.Params, want)
	}
	for k, v := range want {
		if req.Params[k] != v {
			t.Errorf("Params[%q] = %q, want %q", k, req.Params[k], v)
		}
	}

	if sid, ok := req.Cookie("sid"); !ok || sid != "ABCDEF" {
		t.Errorf("Cookie(sid) = %q, %v, want ABCDEF", sid, ok)
	}
	if v, _ := req.Cookie("a"); v != "1" {
		t.Errorf("Cookie(a) = %q, want 1", v)
	}
	if _, ok := req.Cookie("missing"); ok {
		t.Error("Cookie(missing) found")
	}
}

func TestReadRequest_BareLF(t *testing.T) {
	req, err := readHead("\r\nGET /index.html HTTP/1.0\nHost: localhost\n\n", 4096)
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}
	if req.Path != "/index.html" || req.Host != "localhost" || req.Version != "HTTP/1.0" {
		t.Errorf("req = %+v", req)
	}
}

func TestReadRequest_AbsoluteForm(t *testing.T) {
	req, err := readHead("GET http://www.localhost.com:5721/calc?a=3 HTTP/1.1\r\nHost: other\r\n\r\n", 4096)
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}
	if req.Path != "/calc" || req.Params["a"] != "3" {
		t.Errorf("Path = %q, Params = %v", req.Path, req.Params)
	}
	if req.Host != "www.localhost.com" {
		t.Errorf("Host = %q, want the request-target authority", req.Host)
	}
}

func TestReadRequest_MultipleCookieHeaders(t *testing.T) {
	req, err := readHead("GET / HTTP/1.1\r\nCookie: a=1\r\nCookie: sid=XYZ\r\n\r\n", 4096)
	if err != nil {
		t.Fatal(err)
	}
	if sid, _ := req.Cookie("sid"); sid != "XYZ" {
		t.Errorf("Cookie(sid) = %q, want XYZ", sid)
	}
}

func TestReadRequest_Errors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		max    int
		code   string
		status int
	}{
		{"post", "POST / HTTP/1.1\r\n\r\n", 4096, "E301", http.StatusMethodNotAllowed},
		{"head", "HEAD / HTTP/1.1\r\n\r\n", 4096, "E301", http.StatusMethodNotAllowed},
		{"version", "GET / HTTP/2.0\r\n\r\n", 4096, "E302", http.StatusHTTPVersionNotSupported},
		{"http09", "GET /\r\n\r\n", 4096, "E300", http.StatusBadRequest},
		{"extra field", "GET / x HTTP/1.1\r\n\r\n", 4096, "E300", http.StatusBadRequest},
		{"bad target", "GET ftp://x/ HTTP/1.1\r\n\r\n", 4096, "E300", http.StatusBadRequest},
		{"no colon", "GET / HTTP/1.1\r\nBroken header\r\n\r\n", 4096, "E303", http.StatusBadRequest},
		{"space in name", "GET / HTTP/1.1\r\nBad Name: x\r\n\r\n", 4096, "E303", http.StatusBadRequest},
		{"leading fold", "GET / HTTP/1.1\r\n folded\r\n\r\n", 4096, "E303", http.StatusBadRequest},
		{"too large", "GET / HTTP/1.1\r\nX: " + strings.Repeat("a", 600) + "\r\n\r\n", 256, "E304", http.StatusRequestHeaderFieldsTooLarge},
		{"truncated", "GET / HTTP/1.1\r\nHost: x\r\n", 4096, "E305", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readHead(tt.raw, tt.max)
			if !errors.Is(err, tt.code) {
				t.Fatalf("ReadRequest() error = %v, want %s", err, tt.code)
			}
			if got := StatusOf(err); got != tt.status {
				t.Errorf("StatusOf() = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestReadRequest_EmptyConnection(t *testing.T) {
	if _, err := readHead("", 4096); err != io.EOF {
		t.Errorf("ReadRequest() on empty input = %v, want io.EOF", err)
	}
}

func TestReadRequest_LongLineWithinBudget(t *testing.T) {
	// longer than the bufio buffer, still under the limit
	value := strings.Repeat("v", 5000)
	req, err := readHead("GET / HTTP/1.1\r\nX-Big: "+value+"\r\n\r\n", 8192)
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}
	if req.Header["X-Big"] != value {
		t.Errorf("len(X-Big) = %d, want %d", len(req.Header["X-Big"]), len(value))
	}
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want map[string]string
	}{
		{"", map[string]string{}},
		{"name=Ivana+Horvat", map[string]string{"name": "Ivana Horvat"}},
		{"a=1&a=2", map[string]string{"a": "1"}},
		{"bad=%zz", map[string]string{"bad": "%zz"}},
		{"&&k=v&", map[string]string{"k": "v"}},
	}
	for _, tt := range tests {
		got := parseQuery(tt.raw)
		if len(got) != len(tt.want) {
			t.Errorf("parseQuery(%q) = %v, want %v", tt.raw, got, tt.want)
			continue
		}
		for k, v := range tt.want {
			if got[k] != v {
				t.Errorf("parseQuery(%q)[%q] = %q, want %q", tt.raw, k, got[k], v)
			}
		}
	}
}
