// Package main provides the entry point for the msgsource application
package main

import (
	"fmt"
	"os"
)

func main() {
	// Redirect to the actual CLI implementation
	fmt.Println("Please use one of the following commands:")
	fmt.Println("  go run ./cmd/msgsource server   - Bind a reply socket and answer requests")
	fmt.Println("  go run ./cmd/msgsource client   - Connect and send requests")
	os.Exit(0)
}
