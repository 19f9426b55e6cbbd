package main

import (
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/timecoin/timecoind/app"
	"github.com/timecoin/timecoind/chain"
	"github.com/timecoin/timecoind/rpcquery"
)

// openBackend opens the node's chain store for a single read-only query
// and returns a cleanup func the caller must defer. It does not acquire
// the datadir lock or start any background service.
func openBackend(c *cli.Context) (*app.Node, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	n, err := app.New(cfg, app.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("open node: %w", err)
	}
	return n, func() { n.Close() }, nil
}

var startCommand = &cli.Command{
	Name:  "start",
	Usage: "run the masternode node until signaled to stop",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		n, err := app.New(cfg, app.Options{})
		if err != nil {
			return err
		}
		if err := n.Start(); err != nil {
			return err
		}
		waitForShutdownSignal()
		return n.Stop()
	},
}

var getBlockchainInfoCommand = &cli.Command{
	Name:  "getblockchaininfo",
	Usage: "report current height, best hash, and consensus health",
	Action: func(c *cli.Context) error {
		n, cleanup, err := openBackend(c)
		if err != nil {
			return err
		}
		defer cleanup()

		backend := n.Backend()
		height, err := backend.CurrentHeight()
		if err != nil {
			return err
		}
		hash, err := backend.BestHash()
		if err != nil {
			return err
		}
		consensus, err := backend.Consensus()
		if err != nil {
			return err
		}

		return printResult(c, map[string]any{
			"height":           height,
			"best_hash":        hashHex(hash),
			"health_score":     consensus.HealthScore,
			"fork_probability": consensus.ForkProbability,
			"action":           consensus.Action,
		})
	},
}

var getBlockCommand = &cli.Command{
	Name:      "getblock",
	Usage:     "fetch a block by height",
	ArgsUsage: "<height>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("getblock requires exactly one argument: height")
		}
		var height uint64
		if _, err := fmt.Sscanf(c.Args().Get(0), "%d", &height); err != nil {
			return fmt.Errorf("invalid height %q: %w", c.Args().Get(0), err)
		}

		n, cleanup, err := openBackend(c)
		if err != nil {
			return err
		}
		defer cleanup()

		hash, err := n.Backend().HashAtHeight(height)
		if err != nil {
			return err
		}
		return printResult(c, map[string]any{
			"height": height,
			"hash":   hashHex(hash),
		})
	},
}

var getBestHashCommand = &cli.Command{
	Name:  "getbesthash",
	Usage: "print the hash of the current chain tip",
	Action: func(c *cli.Context) error {
		n, cleanup, err := openBackend(c)
		if err != nil {
			return err
		}
		defer cleanup()

		hash, err := n.Backend().BestHash()
		if err != nil {
			return err
		}
		return printResult(c, map[string]any{"best_hash": hashHex(hash)})
	},
}

var peerListCommand = &cli.Command{
	Name:  "peerlist",
	Usage: "list known peers with ping time and priority",
	Action: func(c *cli.Context) error {
		n, cleanup, err := openBackend(c)
		if err != nil {
			return err
		}
		defer cleanup()

		peers, err := n.Backend().Peers()
		if err != nil {
			return err
		}
		items := make([]map[string]any, 0, len(peers))
		for _, p := range peers {
			items = append(items, map[string]any{
				"address":      p.Address,
				"ping_time":    p.PingTime.String(),
				"priority":     p.Priority,
				"success_rate": p.SuccessRate,
			})
		}
		return printList(c, items)
	},
}

var masternodeListCommand = &cli.Command{
	Name:  "masternodelist",
	Usage: "list all registered masternodes",
	Action: func(c *cli.Context) error {
		n, cleanup, err := openBackend(c)
		if err != nil {
			return err
		}
		defer cleanup()

		nodes, err := n.Backend().Masternodes()
		if err != nil {
			return err
		}
		items := make([]map[string]any, 0, len(nodes))
		for _, m := range nodes {
			items = append(items, masternodeFields(m))
		}
		return printList(c, items)
	},
}

var masternodeStatusCommand = &cli.Command{
	Name:      "masternodestatus",
	Usage:     "report status for one masternode",
	ArgsUsage: "<address>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("masternodestatus requires exactly one argument: address")
		}
		n, cleanup, err := openBackend(c)
		if err != nil {
			return err
		}
		defer cleanup()

		m, err := n.Backend().MasternodeStatus(c.Args().Get(0))
		if err != nil {
			return err
		}
		return printResult(c, masternodeFields(m))
	},
}

var masternodeRegisterCommand = &cli.Command{
	Name:      "masternoderegister",
	Usage:     "register a new masternode profile",
	ArgsUsage: "<address> <pubkey-hex> <tier: free|bronze|silver|gold> <stake-weight> <collateral-locked>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 5 {
			return fmt.Errorf("masternoderegister requires 5 arguments: address pubkey-hex tier stake-weight collateral-locked")
		}
		address := c.Args().Get(0)
		pubkeyHex := c.Args().Get(1)
		tierName := c.Args().Get(2)

		var stakeWeight, collateral uint64
		if _, err := fmt.Sscanf(c.Args().Get(3), "%d", &stakeWeight); err != nil {
			return fmt.Errorf("invalid stake-weight: %w", err)
		}
		if _, err := fmt.Sscanf(c.Args().Get(4), "%d", &collateral); err != nil {
			return fmt.Errorf("invalid collateral-locked: %w", err)
		}

		pubkeyRaw, err := hex.DecodeString(pubkeyHex)
		if err != nil || len(pubkeyRaw) != 32 {
			return fmt.Errorf("invalid pubkey-hex: expected 32 bytes hex-encoded")
		}
		var pubkey chain.PublicKey
		copy(pubkey[:], pubkeyRaw)

		tier, err := parseTier(tierName)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		n, err := app.New(cfg, app.Options{})
		if err != nil {
			return err
		}
		defer n.Close()

		profile := &chain.MasternodeProfile{
			Address:          address,
			PublicKey:        pubkey,
			Tier:             tier,
			StakeWeight:      stakeWeight,
			CollateralLocked: collateral,
			Status:           chain.StatusRegistered,
		}
		if err := n.MasternodeRegistry().Put(profile); err != nil {
			return fmt.Errorf("register masternode: %w", err)
		}

		return printResult(c, masternodeFields(rpcquery.ProjectMasternode(profile)))
	},
}

var masternodeDeregisterCommand = &cli.Command{
	Name:      "masternodederegister",
	Usage:     "mark a masternode profile deregistered and release its collateral lock, a terminal lifecycle transition that only an explicit operator action can trigger",
	ArgsUsage: "<address>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("masternodederegister requires exactly one argument: address")
		}
		address := c.Args().Get(0)

		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		n, err := app.New(cfg, app.Options{})
		if err != nil {
			return err
		}
		defer n.Close()

		profile, err := n.MasternodeRegistry().Get(address)
		if err != nil {
			return fmt.Errorf("masternode %q not found: %w", address, err)
		}
		profile.Status = chain.StatusDeregistered
		profile.CollateralLocked = 0
		if err := n.MasternodeRegistry().Put(profile); err != nil {
			return fmt.Errorf("deregister masternode: %w", err)
		}

		return printResult(c, masternodeFields(rpcquery.ProjectMasternode(profile)))
	},
}

var mempoolInfoCommand = &cli.Command{
	Name:  "mempoolinfo",
	Usage: "report pending-transaction pool size",
	Action: func(c *cli.Context) error {
		n, cleanup, err := openBackend(c)
		if err != nil {
			return err
		}
		defer cleanup()

		info, err := n.Backend().Mempool()
		if err != nil {
			return err
		}
		return printResult(c, map[string]any{"size": info.Size, "bytes": info.Bytes})
	},
}

var consensusInfoCommand = &cli.Command{
	Name:  "consensusinfo",
	Usage: "report consensus-health agreement and finality metrics",
	Action: func(c *cli.Context) error {
		n, cleanup, err := openBackend(c)
		if err != nil {
			return err
		}
		defer cleanup()

		info, err := n.Backend().Consensus()
		if err != nil {
			return err
		}
		return printResult(c, map[string]any{
			"health_score":       info.HealthScore,
			"fork_probability":   info.ForkProbability,
			"action":             info.Action,
			"avg_agreement":      info.AvgAgreement,
			"open_fork_events":   info.OpenForkEvents,
			"total_stake_weight": info.TotalStakeWeight,
			"finality_threshold": info.FinalityThreshold,
		})
	},
}

func hashHex(h chain.Hash) string { return hex.EncodeToString(h[:]) }

func masternodeFields(m rpcquery.MasternodeInfo) map[string]any {
	return map[string]any{
		"address":                  m.Address,
		"tier":                     m.Tier,
		"stake_weight":             m.StakeWeight,
		"verified_heartbeat_count": m.VerifiedHeartbeatCount,
		"status":                   m.Status,
		"collateral_locked":        m.CollateralLocked,
	}
}

func parseTier(s string) (chain.MasternodeTier, error) {
	switch s {
	case "free":
		return chain.TierFree, nil
	case "bronze":
		return chain.TierBronze, nil
	case "silver":
		return chain.TierSilver, nil
	case "gold":
		return chain.TierGold, nil
	default:
		return 0, fmt.Errorf("unknown tier %q: want free, bronze, silver, or gold", s)
	}
}
