package main

import (
	"encoding/json"
	"fmt"
	"os"

	"bken/mixcore/internal/daemon"
	"bken/mixcore/internal/deviceio"
)

// Version is the build version string reported by the "version" subcommand.
const Version = "0.1.0"

// defaultDaemonSocket matches prismd's own default socket path.
const defaultDaemonSocket = "/tmp/prismd.sock"

// RunCLI handles subcommand execution before the daemon flags are parsed.
// Returns true if a subcommand was handled.
func RunCLI(args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("mixcore %s\n", Version)
		return true
	case "devices":
		return cliDevices()
	case "route":
		return cliRoute(args[1:])
	default:
		return false
	}
}

func cliDevices() bool {
	backend, err := deviceio.NewPortAudioBackend()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initialising audio backend: %v\n", err)
		os.Exit(1)
	}
	defer backend.Terminate()

	devices, err := backend.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error listing devices: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(devices, "", "  ")
	fmt.Println(string(out))
	return true
}

func cliRoute(args []string) bool {
	if len(args) == 0 || args[0] != "list" {
		fmt.Fprintf(os.Stderr, "Usage: mixcore route list\n")
		os.Exit(1)
		return true
	}
	client := daemon.New(defaultDaemonSocket)
	defer client.Close()

	clients, err := client.Clients()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(clients, "", "  ")
	fmt.Println(string(out))
	return true
}
