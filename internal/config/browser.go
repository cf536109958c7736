package config

import "time"

// BrowserConfig configures the headless Chrome used to render carrier pages.
type BrowserConfig struct {
	// DebuggerURL connects to an already running Chrome instead of launching one.
	DebuggerURL string   `yaml:"debugger_url"`
	Bin         string   `yaml:"bin"`
	Flags       []string `yaml:"flags"`
	Headless    bool     `yaml:"headless"`
	UserAgent   string   `yaml:"user_agent"`

	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`

	NavigationTimeout string `yaml:"navigation_timeout"`
	// IdleWindow is how long the network must stay quiet before the page counts as settled.
	IdleWindow string `yaml:"idle_window"`
}

// DefaultBrowserConfig returns the settings the carrier page was tuned against.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Bin: "/usr/bin/chromium",
		Flags: []string{
			"no-sandbox",
			"disable-setuid-sandbox",
			"disable-gpu",
			"disable-dev-shm-usage",
			"no-zygote",
		},
		Headless:          true,
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:     1366,
		ViewportHeight:    900,
		NavigationTimeout: "60s",
		IdleWindow:        "500ms",
	}
}

// GetNavigationTimeout returns the navigation timeout as a duration.
func (c BrowserConfig) GetNavigationTimeout() time.Duration {
	d, err := time.ParseDuration(c.NavigationTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// GetIdleWindow returns the network idle window as a duration.
func (c BrowserConfig) GetIdleWindow() time.Duration {
	d, err := time.ParseDuration(c.IdleWindow)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}
