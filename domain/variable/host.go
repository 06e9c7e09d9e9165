package variable

import (
	"runtime"
	"time"
)

// HostInfo are the read-only host inputs the env scope is computed from.
type HostInfo struct {
	Mode         string // runtime mode, e.g. "production"
	BaseURL      string
	Platform     string // defaults to runtime.GOOS
	Arch         string // defaults to runtime.GOARCH
	ScreenWidth  int
	ScreenHeight int
	Timestamp    time.Time
}

// Classify maps a platform name to a client class.
func Classify(platform string) string {
	switch platform {
	case "android", "ios":
		return "mobile"
	case "darwin", "windows":
		return "desktop"
	case "js", "wasip1":
		return "browser"
	}
	return "server"
}

// Env computes the env scope. The result is meant to be computed once.
func (h HostInfo) Env() map[string]any {
	if h.Platform == "" {
		h.Platform = runtime.GOOS
	}
	if h.Arch == "" {
		h.Arch = runtime.GOARCH
	}
	if h.Mode == "" {
		h.Mode = "production"
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now()
	}
	class := Classify(h.Platform)
	return map[string]any{
		"mode":          h.Mode,
		"isProduction":  h.Mode == "production",
		"isDevelopment": h.Mode == "development",
		"baseUrl":       h.BaseURL,
		"platform":      h.Platform,
		"arch":          h.Arch,
		"clientType":    class,
		"isMobile":      class == "mobile",
		"screenWidth":   h.ScreenWidth,
		"screenHeight":  h.ScreenHeight,
		"timestamp":     h.Timestamp.UnixMilli(),
	}
}
