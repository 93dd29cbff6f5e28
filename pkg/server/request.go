package server

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/vango-dev/smarthttp/internal/errors"
)

// Request is a parsed request head.
type Request struct {
	Method   string
	Target   string
	Path     string
	RawQuery string
	Version  string

	// Header holds canonical header names. Repeated headers are joined
	// with ", ", except Cookie which is joined with "; ".
	Header map[string]string

	// Host is the Host header without its port, lowercased.
	Host string

	// Params holds the decoded query parameters. When a name repeats the
	// first value wins.
	Params map[string]string
}

// Cookie returns the value of the named cookie, unquoted.
func (r *Request) Cookie(name string) (string, bool) {
	for _, part := range strings.Split(r.Header["Cookie"], ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || strings.TrimSpace(k) != name {
			continue
		}
		v = strings.TrimSpace(v)
		if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
			v = v[1 : len(v)-1]
		}
		return v, true
	}
	return "", false
}

// ReadRequest reads one request head from br. The request line and all
// header lines together may not exceed maxHeaderBytes. Lines may end in
// "\r\n" or a bare "\n", and a line starting with a space or tab continues
// the previous header.
//
// It returns io.EOF when the peer closed the connection before sending
// anything, and an *errors.Error with a protocol code (see StatusOf)
// otherwise.
func ReadRequest(br *bufio.Reader, maxHeaderBytes int) (*Request, error) {
	budget := maxHeaderBytes
	started := false

	var line string
	for {
		l, err := readLine(br, &budget, started)
		if err != nil {
			return nil, err
		}
		started = true
		// tolerate blank lines before the request line
		if l != "" {
			line = l
			break
		}
	}

	req, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	req.Header = make(map[string]string)
	last := ""
	for {
		l, err := readLine(br, &budget, true)
		if err != nil {
			return nil, err
		}
		if l == "" {
			break
		}
		if l[0] == ' ' || l[0] == '\t' {
			if last == "" {
				return nil, errors.New("E303").WithDetail("continuation line before any header")
			}
			req.Header[last] += " " + strings.TrimSpace(l)
			continue
		}

		name, value, ok := strings.Cut(l, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, errors.New("E303").WithDetailf("%q", l)
		}
		name = textproto.CanonicalMIMEHeaderKey(name)
		value = strings.TrimSpace(value)
		if prev, dup := req.Header[name]; dup {
			sep := ", "
			if name == "Cookie" {
				sep = "; "
			}
			value = prev + sep + value
		}
		req.Header[name] = value
		last = name
	}

	if h, ok := req.Header["Host"]; ok && req.Host == "" {
		req.Host = stripPort(h)
	}
	return req, nil
}

// readLine reads a line without its terminator, charging it to budget.
// EOF is io.EOF only if nothing of the request was read yet.
func readLine(br *bufio.Reader, budget *int, started bool) (string, error) {
	var buf []byte
	for {
		chunk, err := br.ReadSlice('\n')
		*budget -= len(chunk)
		if *budget < 0 {
			return "", errors.New("E304")
		}
		buf = append(buf, chunk...)
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF && !started && len(buf) == 0 {
			return "", io.EOF
		}
		return "", errors.New("E305").Wrap(err)
	}
	buf = bytes.TrimSuffix(buf, []byte("\n"))
	buf = bytes.TrimSuffix(buf, []byte("\r"))
	return string(buf), nil
}

func parseRequestLine(line string) (*Request, error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, errors.New("E300").WithDetailf("%q", line)
	}
	req := &Request{Method: parts[0], Target: parts[1], Version: parts[2]}

	if req.Method != "GET" {
		return nil, errors.New("E301").WithDetail(req.Method)
	}
	if req.Version != "HTTP/1.0" && req.Version != "HTTP/1.1" {
		return nil, errors.New("E302").WithDetail(req.Version)
	}

	target := req.Target
	authority := ""
	if !strings.HasPrefix(target, "/") {
		// absolute-form: http://host[:port]/path
		u, err := url.Parse(target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, errors.New("E300").WithDetailf("bad request target %q", target)
		}
		authority = u.Host
		target = u.RequestURI()
	}

	req.Path, req.RawQuery, _ = strings.Cut(target, "?")
	req.Params = parseQuery(req.RawQuery)
	if authority != "" {
		req.Host = stripPort(authority)
	}
	return req, nil
}

// parseQuery decodes a query string. Pairs that fail to decode are kept
// raw; for repeated names the first value wins.
func parseQuery(raw string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if dk, err := url.QueryUnescape(k); err == nil {
			k = dk
		}
		if dv, err := url.QueryUnescape(v); err == nil {
			v = dv
		}
		if k == "" {
			continue
		}
		if _, seen := params[k]; !seen {
			params[k] = v
		}
	}
	return params
}

func stripPort(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.Trim(host, "[]"))
}
