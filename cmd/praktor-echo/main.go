// Command praktor-echo runs a TCP echo server on a praktor reactor loop,
// adapted from the teacher's cmd/ublk-mem device-serving entrypoint:
// flag parsing, logging setup, a SIGUSR1 goroutine-stack dump, and a
// SIGINT/SIGTERM shutdown path that now drains the loop instead of
// tearing down a block device.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/edgeofmagic/praktor"
	"github.com/edgeofmagic/praktor/internal/logging"
)

func main() {
	var (
		addrStr = flag.String("addr", "127.0.0.1:0", "address to listen on")
		verbose = flag.Bool("v", false, "verbose output")
		framed  = flag.Bool("framed", false, "use length-prefixed framing instead of raw echo")
	)
	flag.Parse()

	ep, err := praktor.ParseEndpoint(*addrStr)
	if err != nil {
		log.Fatalf("invalid -addr %q: %v", *addrStr, err)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	loop := praktor.Create()
	opts := praktor.DefaultOptions().WithEndpoint(ep).WithFraming(*framed)
	acceptor, err := loop.CreateAndListen(opts, func(a *praktor.Acceptor, ch praktor.AcceptedChannel, aerr error) {
		if aerr != nil {
			logger.Warn("accept failed", "error", aerr)
			return
		}
		logger.Info("accepted connection", "peer", ch.GetPeerEndpoint().String())
		if fc, ok := ch.(*praktor.FramedChannel); ok {
			_ = fc.StartRead(func(c *praktor.FramedChannel, msg praktor.ImmutableBuffer, rerr error) {
				if rerr != nil {
					c.Close(nil)
					return
				}
				echoed := append([]byte(nil), msg.Bytes()...)
				_ = c.Write(praktor.NewImmutableBuffer(echoed), nil)
			})
			return
		}
		c := ch.(*praktor.Channel)
		_ = c.StartRead(func(c *praktor.Channel, buf praktor.ImmutableBuffer, rerr error) {
			if rerr != nil {
				c.Close(nil)
				return
			}
			echoed := append([]byte(nil), buf.Bytes()...)
			_ = c.WriteBuffer(praktor.NewImmutableBuffer(echoed), nil)
		})
	})
	if err != nil {
		logger.Error("failed to bind/listen", "error", err)
		os.Exit(1)
	}

	fmt.Printf("echoing on %s\n", acceptor.GetEndpoint().String())
	fmt.Printf("Press Ctrl+C to stop...\n")
	fmt.Printf("Send SIGUSR1 (kill -USR1 %d) to dump goroutine stacks\n", os.Getpid())

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1024*1024)
			n := runtime.Stack(buf, true)
			filename := fmt.Sprintf("praktor-stacks-%d.txt", time.Now().Unix())
			if f, err := os.Create(filename); err == nil {
				fmt.Fprintf(f, "Process ID: %d\n\n", os.Getpid())
				f.Write(buf[:n])
				fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
				pprof.Lookup("goroutine").WriteTo(f, 2)
				f.Close()
				logger.Info("stack trace written to file", "file", filename)
			}
		}
	}()

	go loop.Run()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	done := make(chan struct{})
	go func() {
		loop.Close()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("loop closed cleanly")
	case <-time.After(2 * time.Second):
		logger.Info("shutdown timeout, forcing exit")
	}
}
