package serve

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dReg/cmd/util"
	"github.com/ValentinKolb/dReg/lib/common"
	"github.com/ValentinKolb/dReg/lib/liveness"
	vm "github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("cmd")

	ServeCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run a dReg client agent",
		Long: `Register this process as a client, keep its heartbeat fresh and (unless --reap=false) periodically release the locks of clients whose heartbeat went stale.
The configuration can be set via command line flags or environment variables. The format of the environment variables is DREG_<flag> (e.g. DREG_HEARTBEAT_INTERVAL=5s)`,
		RunE: run,
	}
)

func init() {
	cmdUtil.SetupClientFlags(ServeCmd)

	key := "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address on which the prometheus metrics are served (e.g. localhost:9100). Empty disables the endpoint"))

	key = "reap"
	ServeCmd.Flags().Bool(key, true, cmdUtil.WrapString("Run the reaper that removes stale clients and their locks"))
}

// run starts the agent and blocks until SIGINT or SIGTERM
func run(cmd *cobra.Command, _ []string) error {
	conf, err := cmdUtil.LoadConfig(cmd)
	if err != nil {
		return err
	}
	log.Infof("starting dReg agent\n%s", conf.String())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tables, err := cmdUtil.OpenTables(ctx, conf)
	if err != nil {
		return err
	}
	defer cmdUtil.CloseTables(tables)

	livenessConf := cmdUtil.LivenessConfig(conf)

	hb := liveness.NewHeartbeater(tables.Locks, tables.Heartbeats, conf.ClientID, livenessConf,
		liveness.WithClientName(conf.ClientName),
		liveness.WithMetadata(cmdUtil.ClientMetadata("serve")),
	)
	common.SetLogClient(hb.ID())
	if err := hb.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hb.Stop(stopCtx); err != nil {
			log.Errorf("%v", err)
		}
	}()

	if viper.GetBool("reap") {
		go liveness.NewMonitor(tables.Locks, tables.Heartbeats, livenessConf).Run(ctx)
	}

	if conf.MetricsEndpoint != "" {
		srv := newMetricsServer(conf.MetricsEndpoint)
		go func() {
			log.Infof("serving metrics on http://%s/metrics", conf.MetricsEndpoint)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics endpoint failed: %v", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Infof("client %d (%s) is running", hb.ID(), conf.ClientName)
	<-ctx.Done()
	log.Infof("shutting down")
	return nil
}

// newMetricsServer creates the http server of the metrics endpoint
func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		vm.WritePrometheus(w, true)
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
