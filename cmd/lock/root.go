package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/ValentinKolb/dReg/cmd/util"
	"github.com/ValentinKolb/dReg/lib/common"
	"github.com/ValentinKolb/dReg/lib/liveness"
	"github.com/ValentinKolb/dReg/lib/lockmgr"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("cmd")

	errLockLost = errors.New("lock lost, the client was reaped")

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Perform lock operations",
	}

	// execCmd represents the exec command
	execCmd = &cobra.Command{
		Use:   "exec [key] -- [command...]",
		Short: "Run a command while holding a lock",
		Long: `Register a client, acquire the lock, run the command and release the lock again.
Without --wait the command waits for the lock as long as it takes. If the client is reaped while the command runs, the command is killed.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runExec,
	}

	// listCmd represents the list command
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List all held locks",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
)

func init() {
	// Add subcommands to lock command
	LockCommands.AddCommand(execCmd)
	LockCommands.AddCommand(listCmd)

	util.SetupClientFlags(execCmd)

	key := "wait"
	execCmd.Flags().Duration(key, 0, util.WrapString("Maximum time to wait for the lock (0 = wait forever)"))
}

// cancelOnLost drops the cached locks of a reaped client and cancels the command if it held any
func cancelOnLost(mgr *lockmgr.Manager, cancel context.CancelCauseFunc) func(clientID int64) {
	return func(clientID int64) {
		if mgr.Forget(clientID) > 0 {
			cancel(errLockLost)
		}
	}
}

// runExec handles the exec command
func runExec(cmd *cobra.Command, args []string) error {
	conf, err := util.LoadConfig(cmd)
	if err != nil {
		return err
	}
	key, command := args[0], args[1:]
	wait := viper.GetDuration("wait")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tables, err := util.OpenTables(ctx, conf)
	if err != nil {
		return err
	}
	defer util.CloseTables(tables)

	mgr := lockmgr.NewLockManager(tables.Locks, util.LockManagerConfig(conf))

	// the command is canceled if the lock is lost
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	hb := liveness.NewHeartbeater(tables.Locks, tables.Heartbeats, conf.ClientID, util.LivenessConfig(conf),
		liveness.WithClientName(conf.ClientName),
		liveness.WithMetadata(util.ClientMetadata("lock exec "+key)),
		liveness.WithOnLost(cancelOnLost(mgr, cancel)),
	)
	common.SetLogClient(hb.ID())
	if err := hb.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := hb.Stop(stopCtx); err != nil {
			log.Errorf("%v", err)
		}
	}()

	// acquire the lock
	if wait > 0 {
		ok, err := mgr.TryAcquire(ctx, hb.ID(), key, wait)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("lock %q not acquired within %s", key, wait)
		}
	} else if err := mgr.Acquire(ctx, hb.ID(), key); err != nil {
		return err
	}
	log.Infof("acquired lock %q as client %d", key, hb.ID())

	defer func() {
		if err := mgr.Release(context.Background(), hb.ID(), key); err != nil {
			log.Errorf("failed to release lock %q: %v", key, err)
		}
	}()

	// run the command
	c := exec.CommandContext(runCtx, command[0], command[1:]...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	if err := c.Run(); err != nil {
		if cause := context.Cause(runCtx); errors.Is(cause, errLockLost) {
			return cause
		}
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
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

	locks, err := tables.Locks.SelectAll(cmd.Context())
	if err != nil {
		return err
	}

	if len(locks) == 0 {
		fmt.Println("no locks held")
		return nil
	}

	now := time.Now()
	fmt.Printf("%-8s %-32s %-20s %-12s %s\n", "ID", "KEY", "CLIENT", "HELD FOR", "OWNER")
	for _, l := range locks {
		fmt.Printf("%-8d %-32s %-20d %-12s %s\n",
			l.ID, l.LockKey, l.ClientID, now.Sub(l.CreateTime).Round(time.Second), l.LockOwner)
	}
	return nil
}
