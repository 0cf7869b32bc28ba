package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dReg/cmd/client"
	"github.com/ValentinKolb/dReg/cmd/lock"
	"github.com/ValentinKolb/dReg/cmd/serve"
	"github.com/ValentinKolb/dReg/cmd/util"
	"github.com/ValentinKolb/dReg/lib/common"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dreg",
		Short: "table backed distributed locks",
		Long: fmt.Sprintf(`dReg (v%s)

Distributed locks and client liveness on top of an ordinary relational
table (MySQL, PostgreSQL or SQLite). Mutual exclusion is enforced by the
unique key of the lock table, locks of crashed clients are released once
their heartbeat goes stale.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dReg",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dReg v%s\n", Version)
		},
	}

	// migrateCmd creates the tables
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create the lock and heartbeat tables",
		Long:  `Create the lock and heartbeat tables if they do not exist. All other commands do this automatically unless --auto-migrate=false is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := util.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if conf.Driver == common.DriverMemory {
				return fmt.Errorf("the memory backend has no tables to migrate")
			}

			conf.AutoMigrate = true
			tables, err := util.OpenTables(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer util.CloseTables(tables)

			fmt.Printf("tables %slock and %sclient_heartbeat are ready\n", conf.TablePrefix, conf.TablePrefix)
			return nil
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(client.ClientCommands)
	RootCmd.AddCommand(migrateCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupTableFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
