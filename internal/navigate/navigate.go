// Package navigate hands the user agent over to an authorization URL, either
// by answering an HTTP request with a redirect or by opening the system browser.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// ErrAlreadyNavigated is returned when a single-use navigator is reused.
var ErrAlreadyNavigated = errors.New("navigator already used")

// HTTPRedirect answers one HTTP request with a 303 See Other to the target URL.
// Cookies must be set on the ResponseWriter before Navigate is called.
type HTTPRedirect struct {
	w    http.ResponseWriter
	r    *http.Request
	done bool
}

// NewHTTPRedirect returns a navigator bound to a single request.
func NewHTTPRedirect(w http.ResponseWriter, r *http.Request) *HTTPRedirect {
	return &HTTPRedirect{w: w, r: r}
}

// Navigate writes the redirect response.
func (h *HTTPRedirect) Navigate(ctx context.Context, target string) error {
	if h.done {
		return ErrAlreadyNavigated
	}
	if err := validateTarget(target); err != nil {
		return err
	}
	h.done = true
	http.Redirect(h.w, h.r, target, http.StatusSeeOther)
	return nil
}

// Browser opens the target URL in the default system browser. It is used by
// the command line flow where there is no inbound HTTP request to answer.
type Browser struct {
	// Out receives the URL so the user can open it by hand if the browser
	// never appears. Nil disables the echo.
	Out    io.Writer
	opener func(string) error
}

// NewBrowser returns a navigator backed by open-golang.
func NewBrowser(out io.Writer) *Browser {
	return &Browser{Out: out, opener: open.Run}
}

// Navigate opens target. A failure to launch the browser is reported, but the
// URL has already been printed to Out by then.
func (b *Browser) Navigate(ctx context.Context, target string) error {
	if err := validateTarget(target); err != nil {
		return err
	}
	if b.Out != nil {
		fmt.Fprintf(b.Out, "Open the following URL to continue signing in:\n\n  %s\n\n", target)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	opener := b.opener
	if opener == nil {
		opener = open.Run
	}
	if err := opener(target); err != nil {
		log.Debugf("open-golang failed: %v", err)
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

// Print only writes the URL to Out; used when no browser should be launched.
type Print struct {
	Out io.Writer
}

// Navigate writes target to Out.
func (p Print) Navigate(ctx context.Context, target string) error {
	if err := validateTarget(target); err != nil {
		return err
	}
	_, err := fmt.Fprintln(p.Out, target)
	return err
}

func validateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid navigation target: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid navigation target: unsupported scheme %q", u.Scheme)
	}
	return nil
}
