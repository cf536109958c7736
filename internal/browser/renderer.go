// Package browser renders carrier tracking pages in headless Chrome (via
// go-rod) and captures every element's text, box and font weight as a
// layout.Snapshot.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"cttsync/internal/config"
	"cttsync/internal/layout"
	"cttsync/internal/logging"
)

// snapshotScript returns every element in document order with its parent's
// index, raw text content, bounding box and computed font weight.
const snapshotScript = `() => {
	const nodes = Array.from(document.querySelectorAll('*'));
	const index = new Map(nodes.map((el, i) => [el, i]));
	return nodes.map((el) => {
		const r = el.getBoundingClientRect();
		const p = el.parentElement;
		return {
			parent: p && index.has(p) ? index.get(p) : -1,
			text: el.textContent || '',
			box: { left: r.left, top: r.top, right: r.right, bottom: r.bottom },
			fontWeight: String(window.getComputedStyle(el).fontWeight || ''),
		};
	});
}`

// Renderer owns one Chrome instance and renders pages in throwaway
// incognito contexts, so concurrent snapshots share nothing but the process.
type Renderer struct {
	cfg config.BrowserConfig

	mu         sync.RWMutex
	browser    *rod.Browser
	launch     *launcher.Launcher
	controlURL string
}

// NewRenderer creates a renderer. Chrome is started lazily.
func NewRenderer(cfg config.BrowserConfig) *Renderer {
	return &Renderer{cfg: cfg}
}

// Start connects to DebuggerURL or launches a local Chrome.
func (r *Renderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := logging.Get(logging.CategoryBrowser)

	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return nil
		}
		log.Warn("stale browser connection, reconnecting")
		r.closeLocked()
	}

	controlURL := r.cfg.DebuggerURL
	if controlURL == "" {
		l := r.launcher()
		u, err := l.Launch()
		if err != nil {
			// Retry with the launcher's own defaults; some hosts reject the tuned flags.
			fallback := launcher.New().Headless(r.cfg.Headless)
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			log.Warn("chrome launched with default flags", zap.Error(err))
			l, u = fallback, alt
		}
		r.launch = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		r.killLocked()
		return fmt.Errorf("connect to chrome: %w", err)
	}
	// Connect bound the browser to ctx; later calls use their own contexts.
	r.browser = b.Context(context.Background())
	r.controlURL = controlURL
	log.Info("browser connected", zap.String("control_url", controlURL))
	return nil
}

func (r *Renderer) launcher() *launcher.Launcher {
	l := launcher.New().Headless(r.cfg.Headless)
	if r.cfg.Bin != "" {
		l = l.Bin(r.cfg.Bin)
	}
	for _, raw := range r.cfg.Flags {
		name, val, hasVal := parseFlag(raw)
		if name == "" {
			continue
		}
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

// parseFlag splits "--name=value" into its parts.
func parseFlag(raw string) (name, val string, hasVal bool) {
	s := strings.TrimLeft(strings.TrimSpace(raw), "-")
	return strings.Cut(s, "=")
}

func (r *Renderer) ensureStarted(ctx context.Context) (*rod.Browser, error) {
	r.mu.RLock()
	b := r.browser
	r.mu.RUnlock()
	if b != nil {
		return b, nil
	}
	if err := r.Start(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.browser == nil {
		return nil, errors.New("browser not connected")
	}
	return r.browser, nil
}

// ControlURL returns the DevTools WebSocket URL in use.
func (r *Renderer) ControlURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.controlURL
}

// IsConnected reports whether a browser connection is held.
func (r *Renderer) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.browser != nil
}

// Shutdown closes the browser and kills a Chrome this renderer launched.
func (r *Renderer) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.closeLocked()
	if err != nil {
		logging.Get(logging.CategoryBrowser).Warn("browser close failed", zap.Error(err))
	}
	return err
}

func (r *Renderer) closeLocked() error {
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	r.killLocked()
	r.controlURL = ""
	return err
}

func (r *Renderer) killLocked() {
	if r.launch != nil {
		r.launch.Kill()
		r.launch = nil
	}
}

// Snapshot renders url, waits for the network to go idle and captures the
// page's elements.
func (r *Renderer) Snapshot(ctx context.Context, url string) (*layout.Snapshot, error) {
	b, err := r.ensureStarted(ctx)
	if err != nil {
		return nil, err
	}
	log := logging.Get(logging.CategoryBrowser)
	start := time.Now()

	incognito, err := b.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	defer func() { _ = incognito.Close() }()

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             r.viewportWidth(),
		Height:            r.viewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		log.Warn("failed to set viewport", zap.Error(err))
	}
	if r.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.cfg.UserAgent}); err != nil {
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	p := page.Context(ctx).Timeout(r.cfg.GetNavigationTimeout())
	defer p.CancelTimeout()

	wait := p.WaitRequestIdle(r.cfg.GetIdleWindow(), nil, nil, nil)
	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	wait()

	res, err := p.Evaluate(&rod.EvalOptions{
		JS:           snapshotScript,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("capture elements: %w", err)
	}
	if res == nil {
		return nil, errors.New("capture elements: empty result")
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("capture elements: %w", err)
	}

	snap, err := decodeSnapshot(url, raw)
	if err != nil {
		return nil, err
	}
	log.Debug("page captured",
		zap.String("url", url),
		zap.Int("elements", len(snap.Elements)),
		zap.Duration("elapsed", time.Since(start)))
	return snap, nil
}

// decodeSnapshot converts the script result into a snapshot, collapsing
// whitespace in every element's text.
func decodeSnapshot(url string, raw []byte) (*layout.Snapshot, error) {
	var elems []layout.Element
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("decode elements: %w", err)
	}
	if elems == nil {
		elems = []layout.Element{}
	}
	for i := range elems {
		elems[i].Text = layout.CollapseText(elems[i].Text)
	}
	return &layout.Snapshot{URL: url, Elements: elems}, nil
}

func (r *Renderer) viewportWidth() int {
	if r.cfg.ViewportWidth <= 0 {
		return 1366
	}
	return r.cfg.ViewportWidth
}

func (r *Renderer) viewportHeight() int {
	if r.cfg.ViewportHeight <= 0 {
		return 900
	}
	return r.cfg.ViewportHeight
}
