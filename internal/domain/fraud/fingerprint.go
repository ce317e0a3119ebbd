package fraud

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// DeviceFingerprint carries the raw client signals reported for a device.
// Optional signals use pointers so "not reported" is distinguishable from a
// zero value; the derived hash only covers signals that were reported.
type DeviceFingerprint struct {
	UserAgent           string   `json:"user_agent,omitempty"`
	Platform            string   `json:"platform,omitempty"`
	ScreenResolution    string   `json:"screen_resolution,omitempty"`
	ColorDepth          *int     `json:"color_depth,omitempty"`
	Timezone            string   `json:"timezone,omitempty"`
	Language            string   `json:"language,omitempty"`
	HardwareConcurrency *int     `json:"hardware_concurrency,omitempty"`
	DeviceMemory        *int     `json:"device_memory,omitempty"`
	CanvasHash          string   `json:"canvas_hash,omitempty"`
	WebGLVendor         string   `json:"webgl_vendor,omitempty"`
	WebGLRenderer       string   `json:"webgl_renderer,omitempty"`
	AudioHash           string   `json:"audio_hash,omitempty"`
	Plugins             []string `json:"plugins,omitempty"`
	CookiesEnabled      *bool    `json:"cookies_enabled,omitempty"`
	Webdriver           bool     `json:"webdriver,omitempty"`
	Automation          bool     `json:"automation,omitempty"`
	Headless            bool     `json:"headless,omitempty"`
}

// Hash derives the stable device identity as a SHA-256 digest over the
// ordered concatenation of the reported signals. Missing signals are
// omitted rather than zero-filled, so the hash is sensitive to which
// signals the client actually reports.
func (f *DeviceFingerprint) Hash() string {
	parts := make([]string, 0, 16)

	appendIf := func(v string) {
		if v != "" {
			parts = append(parts, v)
		}
	}

	appendIf(f.UserAgent)
	appendIf(f.Platform)
	appendIf(f.ScreenResolution)
	if f.ColorDepth != nil {
		parts = append(parts, strconv.Itoa(*f.ColorDepth))
	}
	appendIf(f.Timezone)
	appendIf(f.Language)
	if f.HardwareConcurrency != nil {
		parts = append(parts, strconv.Itoa(*f.HardwareConcurrency))
	}
	if f.DeviceMemory != nil {
		parts = append(parts, strconv.Itoa(*f.DeviceMemory))
	}
	appendIf(f.CanvasHash)
	appendIf(f.WebGLVendor)
	appendIf(f.WebGLRenderer)
	appendIf(f.AudioHash)
	if len(f.Plugins) > 0 {
		parts = append(parts, strings.Join(f.Plugins, ","))
	}
	if f.CookiesEnabled != nil {
		parts = append(parts, strconv.FormatBool(*f.CookiesEnabled))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// HasSignal reports whether a named signal was supplied by the client.
// Used to penalize fingerprints that withhold required signals.
func (f *DeviceFingerprint) HasSignal(name string) bool {
	switch name {
	case "user_agent":
		return f.UserAgent != ""
	case "platform":
		return f.Platform != ""
	case "screen_resolution":
		return f.ScreenResolution != ""
	case "timezone":
		return f.Timezone != ""
	case "language":
		return f.Language != ""
	case "canvas_hash":
		return f.CanvasHash != ""
	case "webgl_renderer":
		return f.WebGLRenderer != ""
	case "audio_hash":
		return f.AudioHash != ""
	default:
		return false
	}
}
