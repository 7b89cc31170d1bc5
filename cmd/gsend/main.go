package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mastercactapus/gsend/analysis"
	"github.com/mastercactapus/gsend/config"
	"github.com/mastercactapus/gsend/logging"
	"github.com/mastercactapus/gsend/machine"
	"github.com/mastercactapus/gsend/machine/grbl"
	"github.com/mastercactapus/gsend/session"
	"github.com/mastercactapus/gsend/spjs"
	"github.com/mastercactapus/gsend/transport"
	"github.com/mastercactapus/gsend/watchdir"
	"github.com/spf13/cobra"
)

var log = logging.NewLogger("gsend")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "gsend",
		Short:        "Stream G-code programs to a CNC controller",
		SilenceUsage: true,
		RunE:         runServer,
	}
	config.BindFlags(cmd.PersistentFlags())
	cmd.AddCommand(newAnalyzeCmd())

	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	fs := cmd.Flags()
	cfg, err := config.Load(config.ConfigPath(fs))
	if err != nil {
		return cfg, err
	}
	err = cfg.ApplyFlags(fs)
	if err != nil {
		return cfg, err
	}
	return cfg, logging.Configure(cfg.LogLevel, cfg.LogFormat)
}

type spjsTransport struct {
	*grbl.SPJSAdapter
	sp *spjs.SPJS
}

func (t spjsTransport) Close() error {
	t.SPJSAdapter.Close()
	return t.sp.Close()
}

func openTransport(cfg config.Config) (transport.Transport, error) {
	if cfg.FirmwareKind() != machine.Grbl {
		return nil, fmt.Errorf("no transport for %s, only grbl is supported", cfg.FirmwareKind())
	}
	if cfg.Port == "" {
		return nil, errors.New("port is required")
	}
	if cfg.SPJS != "" {
		sp := spjs.NewSPJS(cfg.SPJS)
		return spjsTransport{SPJSAdapter: grbl.NewSPJSAdapter(sp, cfg.Port, cfg.Baud), sp: sp}, nil
	}
	adapter, err := grbl.OpenSerial(cfg.Port, cfg.Baud)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := openTransport(cfg)
	if err != nil {
		return err
	}
	defer t.Close()

	s := session.New(t, session.Config{
		Analysis:         cfg.Analysis(),
		Shuttle:          cfg.ShuttleConfig(),
		ShowLineWarnings: cfg.ShowLineWarnings,
	})
	defer s.Close()

	if cfg.WatchDir != "" {
		w, err := watchdir.New(cfg.WatchDir, 0, func(name, text string) {
			err := s.Load(ctx, name, text)
			if err != nil {
				log.WithError(err).WithField("name", name).Warn("load program")
			}
		})
		if err != nil {
			return fmt.Errorf("watch %s: %w", cfg.WatchDir, err)
		}
		defer w.Close()
		go w.Run(ctx)
	}

	a := newAPI(s)
	defer a.Close()

	srv := &http.Server{Addr: cfg.Addr, Handler: a}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	log.WithField("addr", cfg.Addr).Info("listening")
	err = srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze FILE",
		Short: "Print the bounding box, tools and run time estimate of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			a := analysis.Analyze(string(data), cfg.Analysis())
			a.Name = args[0]
			a.Size = int64(len(data))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a)
		},
	}
}
