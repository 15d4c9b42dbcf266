// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ServerAddr          string
	ConfidenceThreshold float64  // human-probability cutoff for the verify decision
	ModelDir            string   // directory holding classifier.gob/scaler.gob/metadata.json
	MaxBodyBytes        int64    // bytes for /verify payload
	TrustProxy          bool     // honor X-Forwarded-For when resolving origins
	Outputs             []string // enabled decision sinks: log, postgres, kafka
	PostgresDSN         string
}

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}

func getInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getStringSlice(k, def string) []string {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func Load() Config {
	return Config{
		ServerAddr:          getOr("SERVER_ADDR", ":9080"),
		ConfidenceThreshold: getFloat("CONFIDENCE_THRESHOLD", 0.6),
		ModelDir:            getOr("MODEL_DIR", "./model"),
		MaxBodyBytes:        getInt64("MAX_BODY_BYTES", 1<<20), // 1 MiB default
		TrustProxy:          getBool("TRUST_PROXY", false),
		Outputs:             getStringSlice("OUTPUTS", "log"),
		PostgresDSN:         getOr("PG_DSN", ""),
	}
}
