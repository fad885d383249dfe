// Command intervald runs the configured monitors on fixed intervals and
// publishes their datapoints.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "intervald: %s\n", err)
		os.Exit(1)
	}
}
