package session

import "math/rand/v2"

// Viewport is a browser window size presented to the target site.
type Viewport struct {
	Width  int64
	Height int64
}

// Rotating pools of common desktop fingerprints. Small on purpose: each
// value must be plausible on its own, and a large pool of rare values is
// itself a fingerprint.
var (
	viewportPool = []Viewport{
		{Width: 1920, Height: 1080},
		{Width: 1366, Height: 768},
		{Width: 1536, Height: 864},
		{Width: 1440, Height: 900},
		{Width: 1280, Height: 720},
	}

	userAgentPool = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:122.0) Gecko/20100101 Firefox/122.0",
	}
)

// Identity is the fingerprint presented by one browsing context.
type Identity struct {
	UserAgent string
	Viewport  Viewport
	Locale    string
	Timezone  string
}

// newIdentity draws a randomized identity, honoring a caller-supplied
// user agent when given.
func newIdentity(userAgentHint string) Identity {
	ua := userAgentHint
	if ua == "" {
		ua = userAgentPool[rand.IntN(len(userAgentPool))]
	}
	return Identity{
		UserAgent: ua,
		Viewport:  viewportPool[rand.IntN(len(viewportPool))],
		Locale:    "en-US",
		Timezone:  "America/New_York",
	}
}

// PickUserAgent returns the hint when set, otherwise a random pool entry.
// It exists for engines that rotate user agents without a full identity.
func PickUserAgent(hint string) string {
	if hint != "" {
		return hint
	}
	return userAgentPool[rand.IntN(len(userAgentPool))]
}

// interactiveHeaders mirrors the header set an ordinary interactive browser
// sends on a top-level navigation.
var interactiveHeaders = map[string]any{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"DNT":                       "1",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Cache-Control":             "max-age=0",
}

// stealthScript runs before any page script and removes the markers
// headless automation leaves on the navigator object.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {
	get: () => undefined,
	configurable: true
});

Object.defineProperty(navigator, 'plugins', {
	get: () => {
		const plugins = [
			{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
			{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
			{ name: 'Native Client', filename: 'internal-nacl-plugin' }
		];
		plugins.length = 3;
		return plugins;
	},
	configurable: true
});

Object.defineProperty(navigator, 'languages', {
	get: () => ['en-US', 'en'],
	configurable: true
});

if (!window.chrome) window.chrome = {};
window.chrome.runtime = {};

const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
	parameters.name === 'notifications' ?
		Promise.resolve({ state: Notification.permission }) :
		originalQuery(parameters)
);
`
