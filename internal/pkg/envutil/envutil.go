package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

func lookup(key string, log *logger.Logger) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		if log != nil {
			log.Debug("Environment variable not found, using default", "env_var", key)
		}
		return "", false
	}
	return v, true
}

func String(key, def string, log *logger.Logger) string {
	v, ok := lookup(key, log)
	if !ok {
		return def
	}
	return v
}

func Int(key string, def int, log *logger.Logger) int {
	v, ok := lookup(key, log)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable is not an int, using default", "env_var", key, "value", v, "default", def)
		}
		return def
	}
	return i
}

func Float(key string, def float64, log *logger.Logger) float64 {
	v, ok := lookup(key, log)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable is not a float, using default", "env_var", key, "value", v, "default", def)
		}
		return def
	}
	return f
}

func Bool(key string, def bool, log *logger.Logger) bool {
	v, ok := lookup(key, log)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// Duration accepts Go duration strings ("90s", "15m") or a bare integer of seconds.
func Duration(key string, def time.Duration, log *logger.Logger) time.Duration {
	v, ok := lookup(key, log)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	if log != nil {
		log.Warn("Environment variable is not a duration, using default", "env_var", key, "value", v, "default", def.String())
	}
	return def
}

// KeyValues parses "k1=v1,k2=v2" (the OTEL_EXPORTER_OTLP_HEADERS shape). Malformed pairs are
// dropped; nil when nothing usable remains.
func KeyValues(key string, log *logger.Logger) map[string]string {
	v, ok := lookup(key, log)
	if !ok {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(v, ",") {
		k, val, found := strings.Cut(part, "=")
		k, val = strings.TrimSpace(k), strings.TrimSpace(val)
		if !found || k == "" || val == "" {
			continue
		}
		out[k] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
