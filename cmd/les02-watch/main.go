// Command les02-watch is a debug subscriber: it prints every message the
// listener broadcasts and reconnects when the connection drops. Pressing
// Enter forces an immediate reconnect.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"les02bridge/internal/logging"
)

const reconnectDelay = 2 * time.Second

var errManualReconnect = errors.New("manual reconnect")

func main() {
	url := flag.String("url", "ws://localhost:8765/", "listener WebSocket URL")
	flag.Parse()

	log, err := logging.New("info", "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconnect := make(chan struct{}, 1)
	go readEnter(os.Stdin, reconnect)

	for {
		err := watch(ctx, *url, os.Stdout, reconnect, log)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errManualReconnect) {
			log.Info("reconnecting")
			continue
		}
		log.Warn("connection lost", zap.Error(err), zap.Duration("retry_in", reconnectDelay))

		select {
		case <-ctx.Done():
			return
		case <-reconnect:
		case <-time.After(reconnectDelay):
		}
	}
}

// readEnter signals reconnect for every line read from r.
func readEnter(r io.Reader, reconnect chan<- struct{}) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case reconnect <- struct{}{}:
		default:
		}
	}
}

// watch prints messages to out until the connection fails, a reconnect is
// requested or ctx is cancelled.
func watch(ctx context.Context, url string, out io.Writer, reconnect <-chan struct{}, log *zap.Logger) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	log.Info("connected", zap.String("url", url))

	done := make(chan struct{})
	closerExited := make(chan struct{})
	manual := make(chan struct{})
	go func() {
		defer close(closerExited)
		select {
		case <-done:
			return
		case <-ctx.Done():
		case <-reconnect:
			close(manual)
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()
	defer func() {
		close(done)
		<-closerExited
		conn.Close()
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-manual:
				return errManualReconnect
			default:
			}
			return err
		}
		if mt == websocket.BinaryMessage {
			fmt.Fprintf(out, "Received (binary): %s\n", hex.EncodeToString(data))
			continue
		}
		fmt.Fprintf(out, "Received: %s\n", data)
	}
}
