// Command dlock-directory runs the name service peers register
// against at startup (spec.md §6's peer registry collaborator,
// fleshed out per SPEC_FULL.md's supplemented name-service feature).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jabolina/go-dlock/internal/registry"
)

func main() {
	address := flag.String("address", "127.0.0.1:7000", "host:port to listen on")
	flag.Parse()

	directory := registry.NewDirectory()
	fmt.Printf("name service listening on %s\n", *address)
	if err := directory.ListenAndServe(*address); err != nil {
		fmt.Fprintln(os.Stderr, "dlock-directory:", err)
		os.Exit(1)
	}
}
