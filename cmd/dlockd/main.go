// Command dlockd runs a single peer of the distributed
// mutual-exclusion service, registering with a name service and
// accepting REPL commands to acquire/release the token.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/jabolina/go-dlock/internal/types"
	"github.com/jabolina/go-dlock/pkg/dlock"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "dlockd:", err)
		os.Exit(1)
	}
	if cfg.Name == "" || cfg.Address == "" {
		fmt.Fprintln(os.Stderr, "dlockd: -name and -address are required")
		os.Exit(1)
	}

	peer, err := dlock.NewPeer(dlock.Config{
		Name:             cfg.Name,
		Address:          types.PeerAddress(cfg.Address),
		DirectoryAddress: cfg.Directory,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "dlockd: failed starting peer:", err)
		os.Exit(1)
	}
	fmt.Printf("registered as peer %d, listening on %s\n", peer.ID(), cfg.Address)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nshutting down...")
		peer.Destroy()
		os.Exit(0)
	}()

	repl(peer)
}

func repl(peer *dlock.Peer) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: acquire | release | status | quit")
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "acquire":
			peer.Acquire()
			fmt.Println("token acquired, in critical section")
		case "release":
			peer.Release()
			fmt.Println("token released")
		case "status":
			printStatus(peer)
		case "quit", "exit":
			peer.Destroy()
			return
		default:
			fmt.Println("unknown command")
		}
	}
}

func printStatus(peer *dlock.Peer) {
	snap := peer.DisplayStatus()

	stateLabel := snap.State.String()
	switch snap.State {
	case types.TokenHeld:
		stateLabel = color.GreenString(stateLabel)
	case types.TokenPresent:
		stateLabel = color.YellowString(stateLabel)
	case types.NoToken:
		stateLabel = color.RedString(stateLabel)
	}

	fmt.Printf("peer      :: %d\n", snap.Own)
	fmt.Printf("state     :: %s\n", stateLabel)
	fmt.Printf("clock     :: %s\n", humanize.Comma(int64(snap.Clock)))
	fmt.Printf("request   :: %v\n", snap.Request)
	fmt.Printf("token     :: %v\n", snap.Token)

	if last := peer.Metrics().LastHold(); !last.IsZero() {
		fmt.Printf("last hold :: %s\n", humanize.Time(last))
	}

	for _, sample := range peer.Metrics().Snapshot() {
		fmt.Printf("metric    :: %s\n", sample)
	}
}
