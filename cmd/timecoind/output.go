package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
)

// printResult renders v in the mode named by the --output flag:
// "human" (one key: value per line), "compact" (single-line JSON), or
// "json" (pretty-printed JSON). Unrecognized modes fall back to human.
func printResult(c *cli.Context, v map[string]any) error {
	switch c.String("output") {
	case "json":
		enc, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
	case "compact":
		enc, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
	default:
		for _, k := range orderedKeys(v) {
			fmt.Printf("%s: %v\n", k, v[k])
		}
	}
	return nil
}

// printList renders a slice of maps the same way printResult renders one,
// as a JSON array in compact/json mode or a blank-line-separated sequence
// of key:value blocks in human mode.
func printList(c *cli.Context, items []map[string]any) error {
	switch c.String("output") {
	case "json":
		enc, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
	case "compact":
		enc, err := json.Marshal(items)
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
	default:
		for i, item := range items {
			if i > 0 {
				fmt.Println()
			}
			for _, k := range orderedKeys(item) {
				fmt.Printf("%s: %v\n", k, item[k])
			}
		}
	}
	return nil
}

// fieldOrder lists the well-known field names in their preferred display
// order; any keys not named here are appended afterward in map order
// (Go's map iteration order is randomized, but these maps are always
// built with a fixed, known key set so this is rarely hit in practice).
var fieldOrder = []string{
	"height", "hash", "best_hash", "address", "tier", "stake_weight",
	"verified_heartbeat_count", "status", "collateral_locked",
	"ping_time", "priority", "success_rate", "size", "bytes",
	"health_score", "fork_probability", "action", "avg_agreement",
	"open_fork_events", "total_stake_weight", "finality_threshold",
}

func orderedKeys(v map[string]any) []string {
	seen := make(map[string]bool, len(v))
	ordered := make([]string, 0, len(v))
	for _, k := range fieldOrder {
		if _, ok := v[k]; ok {
			ordered = append(ordered, k)
			seen[k] = true
		}
	}
	for k := range v {
		if !seen[k] {
			ordered = append(ordered, k)
		}
	}
	return ordered
}
