package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

type lookupFunc func(string) (string, bool)

// applyEnv overlays the deployment environment variables used by the
// systemd units on top of file values.
func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := []struct {
		key    string
		target *string
	}{
		{"SRC_BASE", &c.Paths.SourceBase},
		{"SERIES_SUBPATH", &c.Paths.SeriesSubpath},
		{"MOVIE_SUBPATH", &c.Paths.MovieSubpath},
		{"SERIES_DST_BASE", &c.Paths.SeriesDest},
		{"MOVIE_DST_BASE", &c.Paths.MovieDest},
		{"SOURCE_TYPE", &c.Paths.DefaultSourceType},
		{"SOURCE_LAYOUT", &c.Paths.Layout},
		{"BUS_TRANSPORT", &c.Bus.Transport},
		{"MQTT_HOST", &c.Bus.Host},
		{"MQTT_USER", &c.Bus.Username},
		{"MQTT_PASSWORD", &c.Bus.Password},
		{"MQTT_TOPIC", &c.Bus.InboundTopic},
		{"MQTT_TOPIC_START", &c.Bus.StartTopic},
		{"MQTT_TOPIC_DONE", &c.Bus.DoneTopic},
		{"MQTT_TOPIC_ERROR", &c.Bus.ErrorTopic},
		{"VAAPI_LOCK", &c.Hardware.LockPath},
		{"FFMPEG_BIN", &c.Encoder.Binary},
	}
	for _, entry := range strs {
		if value, ok := lookup(entry.key); ok && strings.TrimSpace(value) != "" {
			*entry.target = strings.TrimSpace(value)
		}
	}

	if value, ok := lookup("MQTT_PORT"); ok && strings.TrimSpace(value) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("MQTT_PORT: %w", err)
		}
		c.Bus.Port = port
	}
	if value, ok := lookup("MQTT_SSL"); ok {
		c.Bus.TLS = parseBool(value)
	}
	return nil
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// LoadEnvFile reads KEY=VALUE pairs and exports those not already present in
// the environment. A missing file is not an error; the returned bool reports
// whether the file was read.
func LoadEnvFile(path string) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return true, fmt.Errorf("env file %s:%d: expected KEY=VALUE", path, lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, unquote(strings.TrimSpace(value))); err != nil {
			return true, fmt.Errorf("set %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return true, fmt.Errorf("read env file: %w", err)
	}
	return true, nil
}

func unquote(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
