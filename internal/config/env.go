package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ERGOWATCH_"

// ApplyEnv overlays ERGOWATCH_* environment variables onto cfg and
// revalidates it.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	var errs []string
	setInt := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(name string, dst *float64) {
		if v, ok := get(name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	setBool := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	setString := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	setString("DATA_ROOT", &cfg.DataRoot)
	setInt("CAMERA_DEVICE", &cfg.Camera.Device)
	setString("PYTHON", &cfg.Estimator.Python)
	setString("POSE_SCRIPT", &cfg.Estimator.Script)
	setString("MODEL", &cfg.Detection.ModelPath)
	setInt("WINDOW", &cfg.Detection.Window)
	setFloat("ALPHA", &cfg.Detection.Alpha)
	setBool("DISPLAY", &cfg.Detection.Display)
	setInt("CAPTURE_SECONDS", &cfg.Capture.Seconds)
	setString("SOUND", &cfg.Alarm.Sound)
	setString("PLAYER", &cfg.Alarm.PlayerCommand)
	setString("LOG_FORMAT", &cfg.Alarm.LogFormat)
	setBool("MUTED", &cfg.Alarm.Muted)
	setBool("STORE", &cfg.Store.Enabled)
	setString("DB", &cfg.Store.Path)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return Validate(cfg)
}
