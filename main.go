package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"bken/mixcore/internal/capture"
	"bken/mixcore/internal/config"
	"bken/mixcore/internal/control"
	"bken/mixcore/internal/daemon"
	"bken/mixcore/internal/deviceio"
	"bken/mixcore/internal/processor"
	"bken/mixcore/internal/render"
	"bken/mixcore/internal/rpc"
)

func main() {
	if len(os.Args) > 1 {
		if RunCLI(os.Args[1:]) {
			return
		}
	}

	apiAddr := flag.String("api-addr", ":7070", "REST control-surface listen address")
	daemonSocket := flag.String("daemon-socket", "/tmp/prismd.sock", "prismd IPC UNIX socket path")
	sampleRate := flag.Float64("sample-rate", 48000, "I/O sample rate in Hz")
	blockSize := flag.Int("block-size", 256, "I/O callback block size in frames")
	flag.Parse()

	cfg := config.Load()
	if cfg.IOBufferSize > 0 {
		*blockSize = cfg.IOBufferSize
	}

	backend, err := deviceio.NewPortAudioBackend()
	if err != nil {
		slog.Error("main: failed to initialise audio backend", "err", err)
		os.Exit(1)
	}
	defer backend.Terminate()

	proc := processor.New()
	surface := control.New(proc)
	captures := capture.NewRegistry()
	outputs := render.NewRegistry(backend, proc, captures, *sampleRate, *blockSize)
	daemonClient := daemon.New(*daemonSocket)

	httpServer := rpc.New(surface, backend, outputs, daemonClient)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	slog.Info("main: listening", "addr", *apiAddr, "daemon_socket", *daemonSocket)
	if err := httpServer.Run(ctx, *apiAddr); err != nil {
		log.Fatalf("rpc server: %v", err)
	}
}
