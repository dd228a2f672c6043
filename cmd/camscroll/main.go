package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/camscroll/internal/app"
	"github.com/ayusman/camscroll/internal/config"
	"github.com/ayusman/camscroll/internal/logging"
	"github.com/ayusman/camscroll/internal/panel"
	"github.com/ayusman/camscroll/internal/store"
	"github.com/ayusman/camscroll/internal/tray"
)

type options struct {
	configPath string
	addr       string
	logLevel   string
	noTray     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "camscroll",
		Short:        "Scroll pages with hand gestures in front of a webcam",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "path to config file")
	root.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides config)")
	root.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")
	root.Flags().BoolVar(&opts.noTray, "no-tray", false, "run without the system tray")

	root.AddCommand(newConfigCmd(opts), newSessionsCmd(opts))
	return root
}

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(opts.configPath); err == nil {
				return fmt.Errorf("%s already exists", opts.configPath)
			}
			if err := config.Default().Save(opts.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.configPath)
			return nil
		},
	})
	return cmd
}

func newSessionsCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent training sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
				return err
			}
			st, err := store.New(cfg.DBPath())
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.Sessions().List(limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tFINISHED\tNOACTION\tDOWN\tUP")
			for _, s := range sessions {
				finished := "-"
				if s.FinishedAt != nil {
					finished = s.FinishedAt.Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n", s.ID, s.StartedAt.Format(time.DateTime),
					finished, s.NoActionSamples, s.DownSamples, s.UpSamples)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to show")
	return cmd
}

func runDaemon(opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.HTTP.Addr = opts.addr
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Logger

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Config{Settings: cfg, Store: st, Logger: log})
	if err != nil {
		return err
	}
	defer a.Close()

	var wg sync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				log.Error(name+" stopped", zap.Error(err))
				stop()
			}
		}()
	}

	run("app", func() error { return a.Run(ctx) })
	run("http server", func() error { return a.Server().ListenAndServe(ctx, cfg.HTTP.Addr) })
	run("config watcher", func() error {
		return config.Watch(ctx, opts.configPath, log, func(next *config.Config) {
			a.ApplyConfig(next)
			if err := logger.SetLevel(next.Log.Level); err != nil {
				log.Warn("invalid log level", zap.String("level", next.Log.Level), zap.Error(err))
			}
			log.Info("configuration reloaded",
				zap.Int("step_px", a.Actuator().Step()),
				zap.String("log_level", next.Log.Level))
		})
	})

	log.Info("camscroll started",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("backend", cfg.Actuator.Backend),
		zap.Int("embedding_width", a.Embedder().Width()))

	if cfg.Tray.Enabled && !opts.noTray {
		runTray(ctx, stop, a.Panel(), cfg.HTTP.Addr, log)
	} else {
		<-ctx.Done()
	}

	stop()
	wg.Wait()
	log.Info("camscroll stopped")
	return nil
}

// runTray blocks on the tray until ctx is done or the user quits.
func runTray(ctx context.Context, stop context.CancelFunc, pnl *panel.Panel, addr string, log *zap.Logger) {
	inferring, err := pnl.Inferring()
	if err != nil {
		log.Warn("failed to read infer flag", zap.Error(err))
	}

	tr := tray.New(inferring)
	tr.OnInfer(func(on bool) {
		if err := pnl.SetInfer(ctx, on); err != nil {
			log.Warn("failed to set inference", zap.Error(err))
		}
	})
	tr.OnTrain(func() {
		if err := pnl.StartTraining(ctx); err != nil {
			log.Warn("training not started", zap.Error(err))
		}
	})
	tr.OnOpen(func() {
		if err := openBrowser("http://" + addr); err != nil {
			log.Warn("failed to open browser", zap.Error(err))
		}
	})
	tr.OnQuit(stop)

	pnl.Subscribe(func(status string) {
		tr.SetStatus(status)
		if status == "" {
			if on, err := pnl.Inferring(); err == nil {
				tr.SetInferring(on)
			}
		}
	})

	go func() {
		<-ctx.Done()
		tr.Quit()
	}()
	tr.Run()
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
