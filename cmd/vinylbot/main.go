package main

import (
	"log"

	"github.com/m3rciful/vinylbot/core/buildinfo"
	corecmd "github.com/m3rciful/vinylbot/core/cmd"
	"github.com/m3rciful/vinylbot/internal/app"
)

func main() {
	log.Printf("vinylbot %s (%s)", buildinfo.Version, buildinfo.Commit)

	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.Load(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return app.Bootstrap(cfg.(*app.Config))
		},
	})
	if err != nil {
		log.Fatalf("vinylbot: %v", err)
	}
}
