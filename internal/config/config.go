package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the base server configuration.
// PlayTo-specific intervals follow the ranges the configuration page enforces;
// out-of-range values are clamped rather than rejected.
type Config struct {
	Host         string
	Port         string
	SQLiteDBPath string

	// CommunicationTimeoutMs bounds every SOAP and SUBSCRIBE request.
	CommunicationTimeoutMs int
	// DevicePollingIntervalMs is the GetTransportInfo poll period per session.
	DevicePollingIntervalMs int
	// QueueProcessingIntervalMs is the pause between dispatched commands.
	QueueProcessingIntervalMs int
	// ClientDiscoveryInitialIntervalSec is the SSDP M-SEARCH interval while no
	// renderer has been seen yet.
	ClientDiscoveryInitialIntervalSec int
	// ClientDiscoveryIntervalSec is the steady-state M-SEARCH interval.
	ClientDiscoveryIntervalSec int
	// PhotoTransitionTimeoutSec is the slideshow dwell time per photo.
	PhotoTransitionTimeoutSec int
	// MaxResumePct is the completion tolerance used to decide auto-advance.
	MaxResumePct float64

	UserAgent    string
	FriendlyName string
	UDPPortRange string

	// StaticDeviceURLs are description URLs injected as synthetic discoveries
	// when network discovery is disabled or filtered.
	StaticDeviceURLs []string
	DisableDiscovery bool

	// AutoCreateProfiles persists a generated device profile for renderers no
	// stored or built-in profile matches.
	AutoCreateProfiles bool

	EnableSSDPTracing bool
	SSDPTracingFilter string
	EnablePlayToDebug bool

	// ServerURL is the externally reachable base URL for stream and event
	// callback URLs. Discovered from the default route when empty.
	ServerURL string

	// MediaServerURL is the media server renderers pull streams from.
	MediaServerURL    string
	MediaServerAPIKey string
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	cfg := Config{
		Host:         envString("HOST", "0.0.0.0"),
		Port:         envString("PORT", "9010"),
		SQLiteDBPath: envString("SQLITE_DB_PATH", "./data/dlna-hub.db"),

		CommunicationTimeoutMs:            clampInt(envInt("COMMUNICATION_TIMEOUT_MS", 8000), 8000, 60000),
		DevicePollingIntervalMs:           clampInt(envInt("DEVICE_POLLING_INTERVAL_MS", 30000), 0, 1200000),
		QueueProcessingIntervalMs:         clampInt(envInt("QUEUE_PROCESSING_INTERVAL_MS", 1000), 0, 60000),
		ClientDiscoveryInitialIntervalSec: clampInt(envInt("CLIENT_DISCOVERY_INITIAL_INTERVAL_SEC", 5), 4, 1500),
		ClientDiscoveryIntervalSec:        clampInt(envInt("CLIENT_DISCOVERY_INTERVAL_SEC", 1800), 10, 60000),
		PhotoTransitionTimeoutSec:         envInt("PHOTO_TRANSITION_TIMEOUT_SEC", 5),
		MaxResumePct:                      envFloat("MAX_RESUME_PCT", 2),

		UserAgent:    envString("USER_AGENT", "dlna-hub-go/1.0 UPnP/1.0"),
		FriendlyName: envString("FRIENDLY_NAME", "DLNA Hub"),
		UDPPortRange: envString("UDP_PORT_RANGE", "49152-65535"),

		StaticDeviceURLs: envCSV("STATIC_DEVICE_URLS"),
		DisableDiscovery: envBool("DISABLE_DISCOVERY", false),

		AutoCreateProfiles: envBool("AUTO_CREATE_PLAYTO_PROFILES", false),

		EnableSSDPTracing: envBool("ENABLE_SSDP_TRACING", false),
		SSDPTracingFilter: envString("SSDP_TRACING_FILTER", ""),
		EnablePlayToDebug: envBool("ENABLE_PLAYTO_DEBUG", false),

		ServerURL: envString("SERVER_URL", ""),

		MediaServerURL:    envString("MEDIA_SERVER_URL", "http://127.0.0.1:8096"),
		MediaServerAPIKey: envString("MEDIA_SERVER_API_KEY", ""),
	}

	if _, _, err := ParsePortRange(cfg.UDPPortRange); err != nil {
		return Config{}, fmt.Errorf("UDP_PORT_RANGE: %w", err)
	}

	return cfg, nil
}

// ParsePortRange splits a "low-high" range string.
func ParsePortRange(value string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected low-high, got %q", value)
	}
	low, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid low port: %w", err)
	}
	high, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid high port: %w", err)
	}
	if low < 1 || high > 65535 || low > high {
		return 0, 0, fmt.Errorf("range out of bounds: %q", value)
	}
	return low, high, nil
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}

func envCSV(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
