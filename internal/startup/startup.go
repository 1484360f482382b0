package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"chatmedia/internal/logging"
	"chatmedia/internal/workers"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
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

// Config holds all application configuration
type Config struct {
	SourceDir   string
	OutputDir   string
	VoiceDBPath string
	TempDir     string
	DecoderDir  string
	MetricsPort string

	XorKeyHex string
	AESKeyHex string

	PoolSize       int
	MetricsEnabled bool

	// Feature flags based on what is actually available
	VoicesEnabled bool
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	sourceDir := getEnv("CHATMEDIA_SOURCE_DIR", "./source")
	outputDir := getEnv("CHATMEDIA_OUTPUT_DIR", "./resolved")
	voiceDBPath := getEnv("CHATMEDIA_VOICE_DB", "")
	tempDir := getEnv("CHATMEDIA_TEMP_DIR", os.TempDir())
	decoderDir := getEnv("CHATMEDIA_DECODER_DIR", "")
	metricsPort := getEnv("CHATMEDIA_METRICS_PORT", "9090")
	metricsEnabled := getEnvBool("CHATMEDIA_METRICS_ENABLED", false)
	xorKeyHex := getEnv("CHATMEDIA_XOR_KEY", "")
	aesKeyHex := getEnv("CHATMEDIA_AES_KEY", "")

	logging.Info("  CHATMEDIA_SOURCE_DIR:      %s", sourceDir)
	logging.Info("  CHATMEDIA_OUTPUT_DIR:      %s", outputDir)
	logging.Info("  CHATMEDIA_VOICE_DB:        %s", orUnset(voiceDBPath))
	logging.Info("  CHATMEDIA_TEMP_DIR:        %s", tempDir)
	logging.Info("  CHATMEDIA_DECODER_DIR:     %s", orUnset(decoderDir))
	logging.Info("  CHATMEDIA_METRICS_PORT:    %s", metricsPort)
	logging.Info("  CHATMEDIA_METRICS_ENABLED: %v", metricsEnabled)
	logging.Info("  CHATMEDIA_XOR_KEY:         %s", maskSecret(xorKeyHex))
	logging.Info("  CHATMEDIA_AES_KEY:         %s", maskSecret(aesKeyHex))
	logging.Info("  PIPELINE_WORKERS:          %d", workers.PoolSize())
	logging.Info("  LOG_LEVEL:                 %s", logging.GetLevel())

	// Resolve paths
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	sourceDir, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source directory path: %w", err)
	}
	logging.Info("  Source directory (absolute): %s", sourceDir)

	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory path: %w", err)
	}
	logging.Info("  Output directory (absolute): %s", outputDir)

	// Check source directory (warning only: a missing source means
	// every image resolves to source_missing, which is still a valid
	// run for voice-only databases)
	if err := ensureDirectory(sourceDir, "source"); err != nil {
		logging.Warn("  Source directory issue: %v", err)
	}

	// Output directory is required and must be writable
	if err := ensureDirectory(outputDir, "output"); err != nil {
		return nil, fmt.Errorf("output directory error: %w", err)
	}
	logging.Debug("  Testing output directory write access...")
	if err := testWriteAccess(outputDir); err != nil {
		return nil, fmt.Errorf("output directory is not writable (required): %w", err)
	}
	logging.Info("  [OK] Output directory is writable")

	config := &Config{
		SourceDir:      sourceDir,
		OutputDir:      outputDir,
		VoiceDBPath:    voiceDBPath,
		TempDir:        tempDir,
		DecoderDir:     decoderDir,
		MetricsPort:    metricsPort,
		MetricsEnabled: metricsEnabled,
		XorKeyHex:      xorKeyHex,
		AESKeyHex:      aesKeyHex,
		PoolSize:       workers.PoolSize(),
	}

	// Voice resolution needs the message database to exist
	config.VoicesEnabled = checkVoiceDB(voiceDBPath)

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Images:  ENABLED (required)")
	logging.Info("    Voices:  %s", enabledString(config.VoicesEnabled))
	logging.Info("    Metrics: %s", enabledString(config.MetricsEnabled))

	return config, nil
}

func checkVoiceDB(path string) bool {
	if path == "" {
		logging.Info("  Voice database not configured, voice notes disabled")
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		logging.Warn("  Voice database not accessible: %v", err)
		logging.Warn("  Voice notes will be disabled")
		return false
	}
	if info.IsDir() {
		logging.Warn("  Voice database path is a directory, voice notes disabled")
		return false
	}
	logging.Debug("  [OK] Voice database found (%d bytes)", info.Size())
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

// maskSecret hides key material from the startup log while still
// showing whether it was provided.
func maskSecret(s string) string {
	if s == "" {
		return "(unset)"
	}
	return fmt.Sprintf("(set, %d hex chars)", len(s))
}

// LogKeysLoaded logs how the decryption keys were obtained
func LogKeysLoaded(source string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("KEY MATERIAL")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Decryption keys loaded from %s", source)
}

// LogNoKeys logs that the run proceeds without decryption keys
func LogNoKeys() {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("KEY MATERIAL")
	logging.Info("------------------------------------------------------------")
	logging.Warn("  No decryption keys provided")
	logging.Warn("  Image and sticker resolution will fail with key_missing")
}

// LogDecoderInit logs the outcome of locating the voice decoder binary
func LogDecoderInit(path string, err error) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("VOICE DECODER")
	logging.Info("------------------------------------------------------------")
	if err != nil {
		logging.Warn("  Decoder not available: %v", err)
		logging.Warn("  Voice notes will not transcode")
		return
	}
	logging.Info("  [OK] Decoder: %s", path)
}

// LogStoreInit logs voice database initialization
func LogStoreInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("VOICE DATABASE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Voice database opened in %v", duration)
}

// LogPipelineReady logs successful pipeline construction
func LogPipelineReady(poolSize int, startupDuration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("PIPELINE READY")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Worker pool size: %d", poolSize)
	logging.Info("  Startup time:     %v", startupDuration)
	logging.Info("")
}

// LogMetricsStarted logs the metrics endpoint address
func LogMetricsStarted(port string) {
	logging.Info("  Metrics: http://localhost:%s/metrics", port)
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogMetricsRoutes logs the routes of the metrics side server
func LogMetricsRoutes(router *mux.Router) {
	if !logging.IsDebugEnabled() {
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}

	sort.Slice(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })

	logging.Debug("  Metrics server routes (%d total):", len(routes))
	for _, route := range routes {
		logging.Debug("    %-6s %s", route.Method, route.Path)
	}
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
        __          __                  ___
  _____/ /_  ____ _/ /_____ ___  ___  ____/ (_)___ _
 / ___/ __ \/ __ '/ __/ __ '__ \/ _ \/ __  / / __ '/
/ /__/ / / / /_/ / /_/ / / / / /  __/ /_/ / / /_/ /
\___/_/ /_/\__,_/\__/_/ /_/ /_/\___/\__,_/_/\__,_/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Write access was confirmed regardless
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
