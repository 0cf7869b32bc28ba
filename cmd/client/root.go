package client

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/ValentinKolb/dReg/cmd/util"
	"github.com/ValentinKolb/dReg/lib/liveness"
	"github.com/spf13/cobra"
)

var (
	// ClientCommands represents the client command group
	ClientCommands = &cobra.Command{
		Use:   "client",
		Short: "Inspect and reap clients",
	}

	// listCmd represents the list command
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List all registered clients",
		Long:  "List all registered clients with the age of their last heartbeat. Clients that missed too many heartbeats are marked STALE.",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	// reapCmd represents the reap command
	reapCmd = &cobra.Command{
		Use:   "reap",
		Short: "Remove stale clients and release their locks",
		Args:  cobra.NoArgs,
		RunE:  runReap,
	}
)

func init() {
	ClientCommands.AddCommand(listCmd)
	ClientCommands.AddCommand(reapCmd)

	util.SetupClientFlags(ClientCommands)
}

// runList handles the list command
func runList(cmd *cobra.Command, _ []string) error {
	conf, err := util.LoadConfig(cmd)
	if err != nil {
		return err
	}

	tables, err := util.OpenTables(cmd.Context(), conf)
	if err != nil {
		return err
	}
	defer util.CloseTables(tables)

	clients, err := tables.Heartbeats.SelectAll(cmd.Context())
	if err != nil {
		return err
	}

	if len(clients) == 0 {
		fmt.Println("no clients registered")
		return nil
	}

	livenessConf := util.LivenessConfig(conf)
	now := time.Now()

	fmt.Printf("%-20s %-20s %-12s %-6s %s\n", "ID", "NAME", "LAST BEAT", "STATE", "METADATA")
	for _, c := range clients {
		state := "ALIVE"
		if livenessConf.IsStale(c, now) {
			state = "STALE"
		}
		fmt.Printf("%-20d %-20s %-12s %-6s %s\n",
			c.ID, c.ClientName, now.Sub(c.LastHeartbeatTime).Round(time.Millisecond), state, formatMetadata(c.Metadata))
	}
	return nil
}

// runReap handles the reap command
func runReap(cmd *cobra.Command, _ []string) error {
	conf, err := util.LoadConfig(cmd)
	if err != nil {
		return err
	}

	tables, err := util.OpenTables(cmd.Context(), conf)
	if err != nil {
		return err
	}
	defer util.CloseTables(tables)

	reaped, err := liveness.NewMonitor(tables.Locks, tables.Heartbeats, util.LivenessConfig(conf)).Scan(cmd.Context())
	if err != nil {
		return err
	}

	if len(reaped) == 0 {
		fmt.Println("no stale clients")
		return nil
	}
	for _, id := range reaped {
		fmt.Printf("reaped client %d\n", id)
	}
	return nil
}

// formatMetadata renders metadata as sorted key=value pairs
func formatMetadata(metadata map[string]string) string {
	pairs := make([]string, 0, len(metadata))
	for _, k := range slices.Sorted(maps.Keys(metadata)) {
		pairs = append(pairs, k+"="+metadata[k])
	}
	return strings.Join(pairs, ",")
}
