// Command udyamctl drives the registration form from a terminal against a
// running registration server.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
