package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/vango-dev/smarthttp/internal/errors"
	"github.com/vango-dev/smarthttp/pkg/docroot"
	"github.com/vango-dev/smarthttp/pkg/httpctx"
	"github.com/vango-dev/smarthttp/pkg/script"
)

// serveExchange is the innermost handler: dispatch, then an error page if
// nothing was sent yet.
func (s *Server) serveExchange(ex *Exchange) error {
	// middleware may have replaced ex.Ctx, e.g. with a span context
	ex.RC.SetContext(ex.Ctx)
	err := s.dispatchTop(ex)
	if err != nil && !ex.RC.HeaderSent() {
		writeErrorPage(ex.RC, StatusOf(err))
	}
	return err
}

// dispatchTop dispatches a path received from a client.
func (s *Server) dispatchTop(ex *Exchange) error {
	ctx := ex.Ctx
	rel, err := docroot.Resolve(ex.Request.Path)
	if err != nil {
		ex.Kind = KindStatic
		return errors.New("E401").Wrap(err)
	}
	if s.config.isPrivate("/" + rel) {
		ex.Kind = KindPrivate
		return errors.New("E402").WithDetail(ex.Request.Path)
	}
	if err := s.route(ctx, rel, ex.RC, &ex.Kind); err != nil {
		return err
	}
	if ex.Kind == KindScript && s.config.DevScriptURL != "" &&
		strings.HasPrefix(ex.RC.MimeType(), "text/html") {
		_, err := ex.RC.WriteString(`<script src="` + html.EscapeString(s.config.DevScriptURL) + `"></script>`)
		return err
	}
	return nil
}

// Dispatch implements httpctx.Dispatcher. Internal dispatch may reach
// private paths.
func (s *Server) Dispatch(ctx context.Context, path string, rc *httpctx.RequestContext) error {
	rel, err := docroot.Resolve(path)
	if err != nil {
		return errors.New("E401").Wrap(err)
	}
	return s.route(ctx, rel, rc, nil)
}

func (s *Server) route(ctx context.Context, rel string, rc *httpctx.RequestContext, kind *string) error {
	setKind := func(k string) {
		if kind != nil {
			*kind = k
		}
	}

	if w, ok := s.registry.Lookup("/" + rel); ok {
		setKind(KindWorker)
		return w.Process(rc)
	}

	ext := docroot.Ext(rel)
	if strings.EqualFold(ext, s.config.ScriptExtension) {
		setKind(KindScript)
		doc, err := s.cache.Get(ctx, rel)
		if err != nil {
			return notFound(err, rel)
		}
		return script.Run(ctx, doc, rc, s.engineOpts...)
	}

	setKind(KindStatic)
	return s.serveFile(ctx, rel, ext, rc)
}

func (s *Server) serveFile(ctx context.Context, rel, ext string, rc *httpctx.RequestContext) error {
	body, size, err := s.root.Open(ctx, rel)
	if err != nil {
		return notFound(err, rel)
	}
	defer body.Close()

	if err := rc.SetMimeType(s.config.mimeType(ext)); err != nil {
		return err
	}
	if size >= 0 {
		if err := rc.SetContentLength(size); err != nil {
			return err
		}
	}
	if _, err := io.Copy(rc, body); err != nil {
		return err
	}
	return nil
}

func notFound(err error, rel string) error {
	if stderrors.Is(err, docroot.ErrNotFound) {
		return errors.New("E400").WithDetail("/" + rel).Wrap(err)
	}
	return err
}

// writeErrorPage sends a small HTML page for status. It names only the
// status, never a file path.
func writeErrorPage(rc *httpctx.RequestContext, status int) {
	if rc.SetStatusCode(status) != nil {
		return
	}
	rc.SetMimeType("text/html")
	text := html.EscapeString(http.StatusText(status))
	rc.WriteString(fmt.Sprintf("<html><head><title>%d %s</title></head><body><h1>%d %s</h1></body></html>", status, text, status, text))
}
