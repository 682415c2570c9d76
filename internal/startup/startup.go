package startup

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"media-worker/internal/logging"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo is served by /version.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

const rule = "------------------------------------------------------------"

// section starts a titled block of startup output.
func section(title string) {
	logging.Info("")
	logging.Info(rule)
	logging.Info("%s", title)
	logging.Info(rule)
}

// kv logs one aligned "label: value" line inside a section.
func kv(label string, value any) {
	logging.Info("  %-17s%v", label+":", value)
}

func onOff(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogEngineInit reports which external tools the engine found.
func LogEngineInit(duration time.Duration, ffmpegOK, vipsOK bool) {
	section("ENGINE")
	logging.Info("  [OK] Engine initialized in %v", duration.Round(time.Millisecond))
	if ffmpegOK {
		logging.Info("  [OK] ffmpeg and ffprobe found")
	} else {
		logging.Warn("  ffmpeg or ffprobe missing; video artifacts fail until both are installed")
	}
	if vipsOK {
		logging.Info("  [OK] libvips ready for frame encoding")
	} else {
		logging.Info("  libvips unavailable, frames encode with the pure Go path")
	}
}

// RouteInfo describes one registered method and path.
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// GetRoutes lists every route in registration order, one entry per method.
// Routes without a method matcher are reported as "*".
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return err
		}
		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		for _, m := range methods {
			routes = append(routes, RouteInfo{Method: m, Path: path, Name: route.GetName()})
		}
		return nil
	})
	return routes, err
}

// routeGroup is the first path segment, or api/<segment> under /api.
func routeGroup(path string) string {
	first, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if first == "api" && rest != "" {
		sub, _, _ := strings.Cut(rest, "/")
		return "api/" + sub
	}
	return first
}

// LogHTTPRoutes summarizes the router. The full route table is only logged
// at debug level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	section("HTTP SERVER SETUP")

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("  error walking routes: %v", err)
	}
	kv("Routes", len(routes))
	if logHealthChecks {
		kv("Probe logging", "ON")
	} else {
		kv("Probe logging", "OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}

	if !logging.IsDebugEnabled() {
		return
	}
	byGroup := make(map[string][]RouteInfo)
	for _, r := range routes {
		g := routeGroup(r.Path)
		byGroup[g] = append(byGroup[g], r)
	}
	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		label := g
		if label == "" {
			label = "root"
		}
		logging.Debug("  [%s]", label)
		for _, r := range byGroup[g] {
			logging.Debug("    %-6s %s", r.Method, r.Path)
		}
	}
}

// ServerConfig is what LogServerStarted reports.
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	IdleEnabled     bool
	StartupDuration time.Duration
}

// LogServerStarted logs the listening endpoints.
func LogServerStarted(config ServerConfig) {
	base := "http://0.0.0.0:" + config.Port
	section("SERVER STARTED")
	kv("Startup time", config.StartupDuration.Round(time.Millisecond))
	kv("Job API", base+"/api/jobs")
	if config.MetricsEnabled {
		kv("Metrics", base+"/metrics")
	} else {
		kv("Metrics", onOff(false))
	}
	kv("Idle backfill", onOff(config.IdleEnabled))
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info(rule)
}

// LogShutdownInitiated opens the shutdown section.
func LogShutdownInitiated(signal string) {
	section(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs the start of a shutdown step at debug level.
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a finished shutdown step.
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete closes the shutdown section.
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs and exits with status 1.
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

const banner = `
  __  __          _ _        __        __         _
 |  \/  | ___  __| (_) __ _  \ \      / /__  _ __| | _____ _ __
 | |\/| |/ _ \/ _  | |/ _  |  \ \ /\ / / _ \| '__| |/ / _ \ '__|
 | |  | |  __/ (_| | | (_| |   \ V  V / (_) | |  |   <  __/ |
 |_|  |_|\___|\__,_|_|\__,_|    \_/\_/ \___/|_|  |_|\_\___|_|
`

func printBanner() {
	fmt.Println(rule + banner + rule)
	kv("Version", Version)
	kv("Commit", Commit)
	kv("Build time", BuildTime)
	kv("Started", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	kv("Go version", runtime.Version())
	kv("OS/Arch", runtime.GOOS+"/"+runtime.GOARCH)
	kv("CPUs", runtime.NumCPU())
	procs := runtime.GOMAXPROCS(0)
	if procs < runtime.NumCPU() {
		kv("GOMAXPROCS", fmt.Sprintf("%d (container CPU limit)", procs))
	} else {
		kv("GOMAXPROCS", procs)
	}
	if logging.IsDebugEnabled() {
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
}
