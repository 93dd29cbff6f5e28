package workers

import (
	"bytes"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"strconv"
	"time"

	"github.com/vango-dev/smarthttp/pkg/httpctx"
)

// HelloWorker greets the "name" parameter.
type HelloWorker struct{}

// Process writes a small HTML greeting.
func (HelloWorker) Process(rc *httpctx.RequestContext) error {
	if err := rc.SetMimeType("text/html"); err != nil {
		return err
	}
	var b bytes.Buffer
	b.WriteString("<html><body><h1>Hello!!!</h1>")
	fmt.Fprintf(&b, "<p>Now is: %s</p>", time.Now().Format("2006-01-02 15:04:05"))
	if name, ok := rc.Param("name"); ok {
		fmt.Fprintf(&b, "<p>Your name has %d letters.</p>", len([]rune(name)))
	} else {
		b.WriteString("<p>You did not send me your name!</p>")
	}
	b.WriteString("</body></html>")
	_, err := rc.WriteString(b.String())
	return err
}

// EchoParams renders the request parameters as an HTML table.
type EchoParams struct{}

// Process writes one table row per parameter, sorted by name.
func (EchoParams) Process(rc *httpctx.RequestContext) error {
	if err := rc.SetMimeType("text/html"); err != nil {
		return err
	}
	var b bytes.Buffer
	b.WriteString("<html><body><table border=\"1\">")
	for _, name := range rc.ParamNames() {
		v, _ := rc.Param(name)
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td></tr>", html.EscapeString(name), html.EscapeString(v))
	}
	b.WriteString("</table></body></html>")
	_, err := rc.WriteString(b.String())
	return err
}

// CircleWorker draws a filled circle as a PNG.
type CircleWorker struct {
	Size int
}

// Process encodes the image and sends it with a Content-Length.
func (c CircleWorker) Process(rc *httpctx.RequestContext) error {
	size := c.Size
	if size <= 0 {
		size = 200
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	fill := color.RGBA{R: 0x2b, G: 0x6c, B: 0xb0, A: 0xff}
	r := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)+0.5-r, float64(y)+0.5-r
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, fill)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	if err := rc.SetMimeType("image/png"); err != nil {
		return err
	}
	if err := rc.SetContentLength(int64(buf.Len())); err != nil {
		return err
	}
	_, err := rc.Write(buf.Bytes())
	return err
}

// SumWorker adds parameters a and b and renders calc.smscr.
type SumWorker struct{}

// CalcPage is the script SumWorker dispatches to.
const CalcPage = "/private/pages/calc.smscr"

// Process reads a (default 1) and b (default 2), stores the operands and
// their sum as temporary parameters, and dispatches to CalcPage.
func (SumWorker) Process(rc *httpctx.RequestContext) error {
	a := intParam(rc, "a", 1)
	b := intParam(rc, "b", 2)
	rc.SetTemporaryParam("varA", strconv.Itoa(a))
	rc.SetTemporaryParam("varB", strconv.Itoa(b))
	rc.SetTemporaryParam("zbroj", strconv.Itoa(a+b))
	return rc.Dispatch(CalcPage)
}

func intParam(rc *httpctx.RequestContext, name string, def int) int {
	v, ok := rc.Param(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// DefaultBgColor is the background used before a color is chosen.
const DefaultBgColor = "7F7F7F"

// HomePage is the script Home dispatches to.
const HomePage = "/private/pages/home.smscr"

// Home renders the landing page with the session's background color.
type Home struct{}

// Process copies the persistent bgcolor (or DefaultBgColor) into the
// temporary background parameter and dispatches to HomePage.
func (Home) Process(rc *httpctx.RequestContext) error {
	bg, ok := rc.PersistentParam("bgcolor")
	if !ok {
		bg = DefaultBgColor
	}
	rc.SetTemporaryParam("background", bg)
	return rc.Dispatch(HomePage)
}

var hexColor = regexp.MustCompile(`^[0-9a-fA-F]{6}$`)

// BgColorWorker stores a valid "bgcolor" parameter in the session.
type BgColorWorker struct{}

// Process saves bgcolor when it is six hex digits and reports the outcome.
func (BgColorWorker) Process(rc *httpctx.RequestContext) error {
	color, _ := rc.Param("bgcolor")
	updated := hexColor.MatchString(color)
	if updated {
		rc.SetPersistentParam("bgcolor", color)
	}

	if err := rc.SetMimeType("text/html"); err != nil {
		return err
	}
	msg := "Color was not updated."
	if updated {
		msg = "Color was updated."
	}
	_, err := rc.WriteString(`<html><body><a href="/index2.html">Index</a><p>` + msg + `</p></body></html>`)
	return err
}
