package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/htmlrender/pkg/config"
	"github.com/entrhq/htmlrender/pkg/logging"
)

var errMissingBinary = errors.New("browserType.launch: Executable doesn't exist at /ms-playwright/chromium-1140/chrome-linux/chrome")

type fakePage struct {
	playwright.Page
	closes atomic.Int32
	closed chan struct{}
	once   sync.Once
}

func newFakePage() *fakePage {
	return &fakePage{closed: make(chan struct{})}
}

func (p *fakePage) Close(options ...playwright.PageCloseOptions) error {
	p.closes.Add(1)
	p.once.Do(func() { close(p.closed) })
	return nil
}

type fakeBrowser struct {
	playwright.Browser
	connected  atomic.Bool
	closes     atomic.Int32
	closeErr   error
	newPageErr error

	mu       sync.Mutex
	pages    []*fakePage
	pageOpts []playwright.BrowserNewPageOptions
}

func newFakeBrowser() *fakeBrowser {
	b := &fakeBrowser{}
	b.connected.Store(true)
	return b
}

func (b *fakeBrowser) IsConnected() bool {
	return b.connected.Load()
}

func (b *fakeBrowser) Close(options ...playwright.BrowserCloseOptions) error {
	b.closes.Add(1)
	b.connected.Store(false)
	return b.closeErr
}

func (b *fakeBrowser) NewPage(options ...playwright.BrowserNewPageOptions) (playwright.Page, error) {
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p := newFakePage()
	b.pages = append(b.pages, p)
	if len(options) > 0 {
		b.pageOpts = append(b.pageOpts, options[0])
	}
	return p, nil
}

func (b *fakeBrowser) lastPage() *fakePage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pages[len(b.pages)-1]
}

// fakeBrowserType fails launches with launchErrs in order, then succeeds.
type fakeBrowserType struct {
	playwright.BrowserType
	delay      time.Duration
	connectErr error

	mu         sync.Mutex
	launchErrs []error
	launches   int
	connects   []string
	cdp        []string
	lastLaunch playwright.BrowserTypeLaunchOptions
	browsers   []*fakeBrowser
}

func (bt *fakeBrowserType) newBrowser() *fakeBrowser {
	b := newFakeBrowser()
	bt.browsers = append(bt.browsers, b)
	return b
}

func (bt *fakeBrowserType) Launch(options ...playwright.BrowserTypeLaunchOptions) (playwright.Browser, error) {
	time.Sleep(bt.delay)
	bt.mu.Lock()
	defer bt.mu.Unlock()

	bt.launches++
	if len(options) > 0 {
		bt.lastLaunch = options[0]
	}
	if len(bt.launchErrs) > 0 {
		err := bt.launchErrs[0]
		bt.launchErrs = bt.launchErrs[1:]
		return nil, err
	}
	return bt.newBrowser(), nil
}

func (bt *fakeBrowserType) Connect(wsEndpoint string, options ...playwright.BrowserTypeConnectOptions) (playwright.Browser, error) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.connects = append(bt.connects, wsEndpoint)
	if bt.connectErr != nil {
		return nil, bt.connectErr
	}
	return bt.newBrowser(), nil
}

func (bt *fakeBrowserType) ConnectOverCDP(endpointURL string, options ...playwright.BrowserTypeConnectOverCDPOptions) (playwright.Browser, error) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.cdp = append(bt.cdp, endpointURL)
	if bt.connectErr != nil {
		return nil, bt.connectErr
	}
	return bt.newBrowser(), nil
}

func (bt *fakeBrowserType) launchCount() int {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.launches
}

type fakeDriver struct {
	bt      *fakeBrowserType
	stops   atomic.Int32
	stopErr error
}

func (d *fakeDriver) BrowserType(engine config.Engine) (playwright.BrowserType, error) {
	return d.bt, nil
}

func (d *fakeDriver) Stop() error {
	d.stops.Add(1)
	return d.stopErr
}

// fakeStarter hands out drivers sharing one browser type. startErrs are
// returned first, in order.
type fakeStarter struct {
	bt        *fakeBrowserType
	startErrs []error

	mu      sync.Mutex
	starts  int
	drivers []*fakeDriver
}

func (s *fakeStarter) Start() (Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if len(s.startErrs) > 0 {
		err := s.startErrs[0]
		s.startErrs = s.startErrs[1:]
		return nil, err
	}
	d := &fakeDriver{bt: s.bt}
	s.drivers = append(s.drivers, d)
	return d, nil
}

type fakeInstaller struct {
	results   []bool
	driverErr error

	mu          sync.Mutex
	calls       int
	driverCalls int
	timeouts    []time.Duration
}

func (f *fakeInstaller) Install(ctx context.Context, timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.timeouts = append(f.timeouts, timeout)
	if len(f.results) == 0 {
		return true
	}
	ok := f.results[0]
	f.results = f.results[1:]
	return ok
}

func (f *fakeInstaller) InstallDriver() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.driverCalls++
	return f.driverErr
}

type harness struct {
	cfg       *config.Config
	bt        *fakeBrowserType
	starter   *fakeStarter
	installer *fakeInstaller
}

func newHarness() *harness {
	cfg := config.DefaultConfig()
	cfg.InstallRetryDelay = 0
	bt := &fakeBrowserType{}
	return &harness{
		cfg:       cfg,
		bt:        bt,
		starter:   &fakeStarter{bt: bt},
		installer: &fakeInstaller{},
	}
}

func (h *harness) manager(opts ...Option) *Manager {
	base := []Option{
		WithDriverStarter(h.starter.Start),
		WithInstaller(h.installer),
		WithLogger(logging.Nop()),
	}
	return NewManager(h.cfg, append(base, opts...)...)
}
