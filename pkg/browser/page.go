package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// PageFunc uses a page for the duration of a GetPage call.
type PageFunc func(page playwright.Page) error

// GetPage opens a page on the shared session and passes it to fn.
//
// The page is closed exactly once before GetPage returns, whether fn
// returns an error, panics, or ctx is canceled. On cancellation the page is
// closed first and GetPage then waits for fn to return, so fn must not
// block on anything other than the page.
func (m *Manager) GetPage(ctx context.Context, opts PageOptions, fn PageFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	sess, err := m.GetSession(ctx)
	if err != nil {
		return err
	}

	page, err := sess.Browser.NewPage(opts.newPageOptions())
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	m.metrics.PageOpened()

	var once sync.Once
	closePage := func() {
		once.Do(func() {
			if cerr := page.Close(); cerr != nil {
				m.logger.Warnf("Failed to close page: %v", cerr)
			}
		})
	}
	defer func() {
		closePage()
		m.metrics.PageClosed(err)
	}()

	type result struct {
		err      error
		panicked any
	}
	done := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			r.panicked = recover()
			done <- r
		}()
		r.err = fn(page)
	}()

	select {
	case r := <-done:
		if r.panicked != nil {
			err = fmt.Errorf("page callback panicked: %v", r.panicked)
			panic(r.panicked)
		}
		return r.err
	case <-ctx.Done():
		closePage()
		<-done
		return ctx.Err()
	}
}
