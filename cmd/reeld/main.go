// Command reeld runs the transcode daemon with configuration from the
// environment, the way the systemd unit starts it.
package main

import (
	"context"
	"errors"
	"log"
	"os"

	"reel/internal/config"
	"reel/internal/daemonrun"
)

const envFile = "/etc/reel/reel.env"

func main() {
	path := envFile
	if value, ok := os.LookupEnv("REEL_ENV_FILE"); ok {
		path = value
	}
	if _, err := config.LoadEnvFile(path); err != nil {
		log.Fatalf("load env file: %v", err)
	}

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Fatalf("reeld: %v", err)
		}
	}
}
