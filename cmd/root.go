// Package cmd wires the cobra/viper CLI surface: positional port and
// password arguments plus the optional connection-enrichment flags
// SPEC_FULL.md adds on top of spec.md §6.
package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MarSonyTM/ft-irc/internal/logging"
	"github.com/MarSonyTM/ft-irc/server"
)

var v = viper.New()

// Execute is the CLI entrypoint called from main.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ft_irc <port> <password>",
		Short: "A minimal single-threaded IRC server core",
		Args:  cobra.ExactArgs(2),
		RunE:  runServer,
	}

	flags := root.Flags()
	flags.String("host", "ft_irc", "server host token used in message source prefixes")
	flags.String("log-level", "info", "minimum log level (debug, info, warning, error)")
	flags.StringSlice("motd", nil, "message of the day lines, sent after registration")
	flags.Bool("enable-rdns", false, "resolve connecting addresses via reverse DNS")
	flags.Bool("enable-ident", false, "query RFC 1413 ident on connect")
	flags.Bool("enable-proxy-scan", false, "probe connecting addresses for open proxy ports")
	flags.String("dnsbl", "", "DNS blackhole list zone to check connecting addresses against, empty disables")

	_ = v.BindPFlags(flags)

	return root
}

func runServer(cmd *cobra.Command, args []string) error {
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", args[0], err)
	}
	password := args[1]

	cfg := server.Config{
		Port:            port,
		Password:        password,
		HostToken:       v.GetString("host"),
		LogLevel:        logging.ParseLevel(v.GetString("log-level")),
		MOTD:            v.GetStringSlice("motd"),
		EnableRDNS:      v.GetBool("enable-rdns"),
		EnableIdent:     v.GetBool("enable-ident"),
		EnableProxyScan: v.GetBool("enable-proxy-scan"),
		DNSBLDomain:     v.GetString("dnsbl"),
	}

	log := logging.New(os.Stdout, cfg.LogLevel)
	srv, err := server.New(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	go waitForShutdown(srv, log)

	return srv.Start()
}
