// Command tracker follows index and crypto quotes and fires price alerts.
package main

import (
	"fmt"
	"os"

	"market-tracker/internal/cli"
	"market-tracker/internal/logging"
)

func main() {
	logger := logging.NewLoggerWithConfig(logging.LogConfig{Level: "warn", Console: true})

	if err := cli.NewRootCmd(logger).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
