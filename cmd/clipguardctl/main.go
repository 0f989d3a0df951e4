// clipguardctl is the control CLI for the clipguardd daemon.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"clipguard/internal/config"
	"clipguard/internal/ipc"
)

var (
	configPath = flag.String("config", "", "path to config file")
	jsonOut    = flag.Bool("json", false, "print raw JSON responses")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "clipguardctl:", err)
		os.Exit(1)
	}
	client := ipc.NewClient(cfg.IPC.SocketPath, 10*time.Second)

	cmd := flag.Arg(0)
	switch cmd {
	case "status":
		cmdStatus(client)
	case "confirm":
		cmdSimple(client, ipc.CmdConfirm, "protection confirmed")
	case "dismiss":
		cmdSimple(client, ipc.CmdDismiss, "protection dismissed")
	case "cancel":
		cmdSimple(client, ipc.CmdCancel, "session cancelled")
	case "stats":
		cmdStats(client)
	case "ping":
		cmdPing(client)
	case "shutdown":
		cmdSimple(client, ipc.CmdShutdown, "daemon shutting down")
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`clipguardctl - control the clipguard daemon

USAGE:
    clipguardctl [flags] <command>

COMMANDS:
    status      Show current protection state
    confirm     Confirm the pending protection prompt
    dismiss     Dismiss the pending protection prompt
    cancel      End the active protection session early
    stats       Show usage statistics
    ping        Check whether the daemon is running
    shutdown    Stop the daemon
    help        Show this help message

FLAGS:
    -config <path>   Use an alternate config file
    -json            Print raw JSON responses`)
}

func cmdSimple(client *ipc.Client, command, okMsg string) {
	resp, err := client.Do(command)
	if err != nil {
		fail(resp, err)
	}
	fmt.Println(okMsg)
}

func cmdPing(client *ipc.Client) {
	if err := client.Ping(); err != nil {
		fmt.Println("daemon is not running")
		os.Exit(1)
	}
	fmt.Println("daemon is running")
}

func cmdStatus(client *ipc.Client) {
	resp, err := client.Do(ipc.CmdStatus)
	if err != nil {
		fail(resp, err)
	}
	if *jsonOut {
		printJSON(resp.Status)
		return
	}

	st := resp.Status
	fmt.Printf("State:           %s\n", st.State)
	if st.Coin != "" {
		fmt.Printf("Coin:            %s\n", st.Coin)
		fmt.Printf("Address:         %s\n", st.AddressPrefix)
	}
	switch st.State {
	case "pending":
		fmt.Printf("Waiting for:     %s\n", st.PendingAge.Round(time.Second))
	case "active":
		fmt.Printf("Time remaining:  %s\n", st.Remaining.Round(time.Second))
	}
	fmt.Printf("Threats blocked: %d\n", st.ThreatsBlocked)
}

func cmdStats(client *ipc.Client) {
	resp, err := client.Do(ipc.CmdStats)
	if err != nil {
		fail(resp, err)
	}
	if *jsonOut {
		printJSON(resp.Stats)
		return
	}

	s := resp.Stats
	fmt.Printf("Clipboard checks:       %d\n", s.Checks)
	fmt.Printf("Addresses detected:     %d\n", s.TotalCopies())
	for _, coin := range s.Coins() {
		fmt.Printf("  %-20s  %d\n", coin, s.CopiesByCoin[coin])
	}
	fmt.Printf("Protection sessions:    %d\n", s.Activations)
	fmt.Printf("Safe pastes verified:   %d\n", s.SafePastes)
	fmt.Printf("Threats blocked:        %d\n", s.ThreatsBlocked)
}

func fail(resp *ipc.Response, err error) {
	if resp != nil && resp.Error != "" {
		fmt.Fprintln(os.Stderr, "clipguardctl:", resp.Error)
	} else {
		fmt.Fprintln(os.Stderr, "clipguardctl:", err)
	}
	os.Exit(1)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "clipguardctl:", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
