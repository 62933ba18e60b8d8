package spotify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"stream-tracker/acquisition"
	"stream-tracker/config"
	"stream-tracker/models"
	"stream-tracker/utils"
)

// playcountScript is the in-page fallback: every playcount element's text
// that contains a digit.
const playcountScript = `
	(function() {
		var out = [];
		document.querySelectorAll('[data-testid="playcount"]').forEach(function(el) {
			var text = (el.textContent || '').trim();
			if (text && /\d/.test(text)) out.push(text);
		});
		return out;
	})()
`

// BrowserFetcher renders the track page in headless Chrome and reads the
// play counter from the live DOM. Chrome is started on first use and
// shared; every attempt gets its own tab.
type BrowserFetcher struct {
	cfg    *config.Config
	logger *utils.Logger

	// openTab and read are the Chrome-facing steps of an attempt.
	openTab func() (context.Context, context.CancelFunc, error)
	read    func(tabCtx context.Context, url string) (int64, error)

	mu            sync.Mutex
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// NewBrowserFetcher creates the browser tier. No process is started until
// the first Attempt.
func NewBrowserFetcher(cfg *config.Config, logger *utils.Logger) *BrowserFetcher {
	b := &BrowserFetcher{cfg: cfg, logger: logger}
	b.openTab = b.newTab
	b.read = b.readCount
	return b
}

func (b *BrowserFetcher) Method() models.Method { return models.MethodBrowserFetch }

// browser returns the shared browser context, launching Chrome if needed.
func (b *BrowserFetcher) browser() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		return b.browserCtx, nil
	}

	chromeBin := FindChromeBinary(b.cfg.ChromeBin)
	b.logger.Info("[browser] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgents[0]),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	b.browserCtx, b.cancelBrowser, b.cancelAlloc = browserCtx, cancelBrowser, cancelAlloc
	return browserCtx, nil
}

// newTab opens a tab on the shared browser.
func (b *BrowserFetcher) newTab() (context.Context, context.CancelFunc, error) {
	browserCtx, err := b.browser()
	if err != nil {
		return nil, nil, err
	}
	tabCtx, closeTab := chromedp.NewContext(browserCtx)
	return tabCtx, closeTab, nil
}

// withTab runs fn in a fresh tab bounded by the page-load timeout. The tab
// is closed on every return path, and cancelling ctx closes it early.
func (b *BrowserFetcher) withTab(ctx context.Context, fn func(tabCtx context.Context) error) error {
	tabCtx, closeTab, err := b.openTab()
	if err != nil {
		return err
	}
	defer closeTab()

	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	tabCtx, cancel := context.WithTimeout(tabCtx, b.cfg.PageLoadTimeout)
	defer cancel()

	return fn(tabCtx)
}

// Attempt loads track.URL and reads the play counter, retrying once after
// a short pause.
func (b *BrowserFetcher) Attempt(ctx context.Context, track *models.Track) (acquisition.Observation, error) {
	attempts := b.cfg.BrowserAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var count int64
		lastErr = b.withTab(ctx, func(tabCtx context.Context) error {
			n, err := b.read(tabCtx, track.URL)
			count = n
			return err
		})
		if lastErr == nil {
			b.logger.Debug("[browser] %s: %d", track.Name, count)
			return acquisition.Observation{Count: count, Confidence: 1.0}, nil
		}

		b.logger.Debug("[browser] %s: attempt %d/%d: %v", track.Name, attempt, attempts, lastErr)
		if attempt < attempts {
			if err := utils.Sleep(ctx, time.Second); err != nil {
				lastErr = err
				break
			}
		}
	}
	return acquisition.Observation{}, fmt.Errorf("%w: browser: %v", acquisition.ErrAcquisition, lastErr)
}

func (b *BrowserFetcher) readCount(tabCtx context.Context, url string) (int64, error) {
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(b.cfg.BrowserSettle),
	); err != nil {
		return 0, fmt.Errorf("navigate: %w", err)
	}

	// Direct element query, bounded by the selector wait.
	waitCtx, cancel := context.WithTimeout(tabCtx, b.cfg.BrowserWait)
	var text string
	err := chromedp.Run(waitCtx,
		chromedp.WaitReady(playcountSelector, chromedp.ByQuery),
		chromedp.Text(playcountSelector, &text, chromedp.ByQuery),
	)
	cancel()
	if err == nil {
		if n, ok := PickCount([]string{text}); ok {
			return n, nil
		}
		b.logger.Debug("[browser] rejected element text %q", text)
	}

	var texts []string
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(playcountScript, &texts)); err != nil {
		return 0, fmt.Errorf("playcount script: %w", err)
	}
	if n, ok := PickCount(texts); ok {
		return n, nil
	}
	return 0, fmt.Errorf("no plausible playcount among %d element(s)", len(texts))
}

// Close shuts Chrome down. The fetcher restarts it on next use.
func (b *BrowserFetcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelBrowser != nil {
		b.cancelBrowser()
		b.cancelAlloc()
	}
	b.browserCtx, b.cancelBrowser, b.cancelAlloc = nil, nil, nil
}
