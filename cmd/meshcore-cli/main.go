package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "meshcore-cli",
		Short: "MeshCore companion radio command-line client",
		Long: `meshcore-cli talks to a MeshCore companion radio over TCP or serial.
It can query the device, list contacts, send messages, stream events, and
decode raw mesh packets, adverts and CayenneLPP telemetry offline.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.tcp, "tcp", "", "Device TCP address (host:port)")
	pf.StringVar(&g.serial, "serial", "", "Device serial port path")
	pf.IntVar(&g.baud, "baud", 115200, "Serial baud rate")
	pf.DurationVar(&g.timeout, "timeout", defaultTimeout, "Per-command timeout")
	pf.StringVarP(&g.output, "output", "o", "yaml", "Output format: yaml or json")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging on stderr")

	rootCmd.AddCommand(newInfoCmd(g))
	rootCmd.AddCommand(newContactsCmd(g))
	rootCmd.AddCommand(newSendCmd(g))
	rootCmd.AddCommand(newListenCmd(g))
	rootCmd.AddCommand(newPortsCmd(g))
	rootCmd.AddCommand(newDecodeCmd(g))

	return rootCmd
}
