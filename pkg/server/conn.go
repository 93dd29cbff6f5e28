package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/vango-dev/smarthttp/pkg/httpctx"
)

// serveConn serves a single request on c and closes it.
func (s *Server) serveConn(ctx context.Context, c net.Conn) {
	defer c.Close()
	start := time.Now()

	if s.config.ReadTimeout > 0 {
		c.SetReadDeadline(start.Add(s.config.ReadTimeout))
	}
	br := bufio.NewReader(c)
	bw := bufio.NewWriter(c)

	req, err := ReadRequest(br, s.config.MaxHeaderBytes)
	if err == io.EOF {
		return
	}
	if err != nil {
		status := StatusOf(err)
		s.logger.Debug("bad request", "remote", c.RemoteAddr().String(), "status", status, "error", err)
		rc := httpctx.New(bw)
		writeErrorPage(rc, status)
		rc.Flush()
		return
	}
	c.SetReadDeadline(time.Time{})
	if s.config.WriteTimeout > 0 {
		c.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}

	host := req.Host
	if host == "" {
		host = s.config.Domain
	}
	candidate, _ := req.Cookie(s.sessions.CookieName())

	ex := &Exchange{Ctx: ctx, Request: req, Start: start}
	opts := []httpctx.Option{
		httpctx.WithParams(req.Params),
		httpctx.WithDispatcher(s),
		httpctx.WithContext(ctx),
	}

	sess, created, err := s.sessions.Resolve(ctx, candidate, host)
	if err != nil {
		s.logger.Warn("session resolve failed", "host", host, "error", err)
		rc := httpctx.New(bw)
		writeErrorPage(rc, StatusOf(err))
		rc.Flush()
		return
	}
	ex.Session, ex.NewSession = sess, created
	opts = append(opts, httpctx.WithPersistent(sess.Params))
	if created {
		opts = append(opts, httpctx.WithCookies(s.sessions.Cookie(sess)))
	}
	ex.RC = httpctx.New(bw, opts...)

	err = s.handler(ex)
	if err != nil {
		s.logger.Warn("request failed",
			"path", req.Path,
			"kind", ex.Kind,
			"status", ex.Status(),
			"header_sent", ex.RC.HeaderSent(),
			"error", err)
	}
	if ferr := ex.RC.Flush(); ferr != nil {
		s.logger.Debug("write failed", "path", req.Path, "error", ferr)
		return
	}
	s.logger.Debug("request",
		"path", req.Path,
		"kind", ex.Kind,
		"status", ex.Status(),
		"session_id", sess.ID,
		"duration", time.Since(start))
}
