// Command timecoind is the masternode-core process: it opens the chain
// store and consensus subsystems under a data directory and serves both
// the long-running node (timecoind start) and one-shot query/action
// subcommands against that same state.
//
// This binary talks to the local datadir directly through rpcquery.Backend rather than over a
// network RPC client, since no RPC server implementation is specified
// here to connect to.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/timecoin/timecoind/nodecfg"
)

var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "timecoind",
		Usage:   "masternode-core consensus node",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "datadir",
				Usage: "data directory path",
				Value: nodecfg.DefaultConfig().DataDir,
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "output mode: human, compact, json",
				Value: "human",
			},
		},
		Commands: []*cli.Command{
			startCommand,
			getBlockchainInfoCommand,
			getBlockCommand,
			getBestHashCommand,
			peerListCommand,
			masternodeListCommand,
			masternodeStatusCommand,
			masternodeRegisterCommand,
			masternodeDeregisterCommand,
			mempoolInfoCommand,
			consensusInfoCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves nodecfg.Config for a CLI invocation: it starts from
// DefaultConfig, overrides DataDir from the --datadir flag, and loads
// config.yaml from that datadir if present.
func loadConfig(c *cli.Context) (nodecfg.Config, error) {
	datadir := c.String("datadir")
	cfg := nodecfg.DefaultConfig()
	cfg.DataDir = datadir

	if path := cfg.ConfigPath(); fileExists(path) {
		loaded, err := nodecfg.LoadFile(path)
		if err != nil {
			return nodecfg.Config{}, err
		}
		loaded.DataDir = datadir
		cfg = loaded
	}
	return cfg, cfg.Validate()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
