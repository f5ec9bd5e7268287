// Command les02-listener reads LES02 encoder frames from CAN and broadcasts
// position samples to WebSocket subscribers.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"les02bridge/internal/app"
	"les02bridge/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (LES02_* environment variables override it)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fx.New(app.Module(cfg)).Run()
}
