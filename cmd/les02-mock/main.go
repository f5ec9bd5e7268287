// Command les02-mock writes synthetic LES02 position frames onto a
// SocketCAN interface, typically vcan0, for exercising the listener.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"les02bridge/internal/can"
	"les02bridge/internal/logging"
	"les02bridge/internal/mock"
)

func main() {
	iface := flag.String("interface", "vcan0", "SocketCAN interface to write to")
	mode := flag.String("mode", "trip", "generator: counter or trip")
	interval := flag.Duration("interval", 2*time.Millisecond, "frame interval for the counter generator")
	flag.Parse()

	log, err := logging.New("info", "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	var gen can.Source
	switch *mode {
	case "counter":
		gen = mock.NewCounter(*interval, nil)
	case "trip":
		trip, err := mock.NewTrip(mock.DefaultProfile(), nil)
		if err != nil {
			log.Fatal("build motion profile", zap.Error(err))
		}
		gen = trip
	default:
		log.Fatal("unknown mode", zap.String("mode", *mode))
	}

	bus, err := can.OpenSocketCAN(*iface)
	if err != nil {
		log.Fatal("open bus", zap.Error(err))
	}
	defer bus.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		gen.Close()
	}()

	log.Info("mocking LES02", zap.String("interface", *iface), zap.String("mode", *mode))
	for {
		f, err := gen.Receive()
		if errors.Is(err, can.ErrClosed) {
			return
		}
		if err != nil {
			log.Fatal("generator", zap.Error(err))
		}
		if err := bus.Send(f); err != nil {
			log.Fatal("send", zap.Error(err))
		}
	}
}
