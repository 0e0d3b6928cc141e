package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ModelPath is the bundled model artifact. It is fixed at build time:
//
//	go build -ldflags "-X visionapp/internal/config.ModelPath=assets/other.onnx"
var ModelPath = filepath.Join("assets", "cat-or-dog.onnx")

const (
	SourceDevice = "device"
	SourceUDP    = "udp"

	EngineONNX = "onnx"
	EngineDNN  = "dnn"
)

type Config struct {
	Port                 int
	Password             string
	ModelPath            string
	Engine               string            // onnx lub dnn
	ONNXLibraryPath      string            // Ścieżka do onnxruntime.so, puste = domyślna
	CameraSource         string            // device lub udp
	CameraDevice         string            // np. "0" albo "/dev/video2"
	CamerasPort          int               // Port UDP dla kamer sieciowych
	CameraNames          map[string]string // IP -> nazwa kamery
	PreviewInterval      int               // Co którą klatkę wysyłać podgląd (1=każdą)
	DeviceRetryInterval  int               // Sekundy między próbami gdy kamera jest zajęta
	DatabasePath         string
	JournalBufferLimit   int
	JournalFlushInterval int
	LogDirectory         string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                 getEnvAsInt("PORT", 8080),
		Password:             getEnv("PASSWORD", "visionapp"),
		ModelPath:            ModelPath,
		Engine:               getEnv("ENGINE", EngineONNX),
		ONNXLibraryPath:      getEnv("ONNX_LIBRARY_PATH", ""),
		CameraSource:         getEnv("CAMERA_SOURCE", SourceDevice),
		CameraDevice:         getEnv("CAMERA_DEVICE", ""),
		CamerasPort:          getEnvAsInt("CAMERAS_PORT", 5005),
		CameraNames:          parseCameraNames(getEnv("CAMERA_NAMES", "")),
		PreviewInterval:      getEnvAsInt("PREVIEW_INTERVAL", 2),
		DeviceRetryInterval:  getEnvAsInt("DEVICE_RETRY_INTERVAL", 5),
		DatabasePath:         getEnv("DATABASE_PATH", filepath.Join(".", "data", "visionapp.db")),
		JournalBufferLimit:   getEnvAsInt("JOURNAL_BUFFER_LIMIT", 200),
		JournalFlushInterval: getEnvAsInt("JOURNAL_FLUSH_INTERVAL", 30),
		LogDirectory:         getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}
}

// parseCameraNames parses "192.168.1.20=front,192.168.1.21=garden".
func parseCameraNames(value string) map[string]string {
	names := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		ip, name, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || ip == "" || name == "" {
			continue
		}
		names[strings.TrimSpace(ip)] = strings.TrimSpace(name)
	}
	return names
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}
