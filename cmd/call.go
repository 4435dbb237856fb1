package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BioHazard786/doorcall/internal/config"
	"github.com/BioHazard786/doorcall/internal/metrics"
	"github.com/BioHazard786/doorcall/internal/session"
	"github.com/BioHazard786/doorcall/internal/trigger"
	"github.com/BioHazard786/doorcall/internal/ui"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	flagConfig      string
	flagServer      string
	flagRoom        string
	flagTimeout     time.Duration
	flagSTUN        string
	flagTURN        string
	flagTURNUser    string
	flagTURNPass    string
	flagRelay       bool
	flagInsecure    bool
	flagReceiveOnly bool
	flagRecordDir   string
	flagWebURL      string
	flagWebhook     string
	flagMetricsAddr string
	flagKeepGoing   bool
	flagOnce        bool
	flagPlain       bool
)

var callCmd = &cobra.Command{
	Use:     "call",
	Aliases: []string{"c"},
	Short:   "Answer one call per button press",
	Long: `Wait for a trigger, open a room on the rendezvous server and answer the browser that joins it.

In a terminal any key starts a call and q quits. When stdin is not a terminal (or with --plain)
every line read from stdin starts a call, so a GPIO helper can simply write newlines.

Examples:
  doorcall call --server wss://signal.example.com
  doorcall call --once --room front-door --timeout 30s
  doorcall call --receive-only --record-dir ./calls
  echo | doorcall call --webhook https://hooks.example.com/door`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCalls(cmd.Context())
	},
}

func init() {
	f := callCmd.Flags()
	f.StringVarP(&flagConfig, "config", "c", "", "TOML config file")
	f.StringVarP(&flagServer, "server", "s", "", "Rendezvous server URL (ws, wss, http or https)")
	f.StringVarP(&flagRoom, "room", "r", "", "Fixed room name (default: a new random name per call)")
	f.DurationVarP(&flagTimeout, "timeout", "t", 0, "Wait for the peer, the offer and the hang-up at most this long (default 20s)")
	f.StringVar(&flagSTUN, "stun", "", "STUN server URL")
	f.StringVar(&flagTURN, "turn", "", "TURN server URL")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	f.BoolVar(&flagRelay, "relay", false, "Force relay mode (requires --turn)")
	f.BoolVar(&flagInsecure, "insecure", false, "Skip TLS verification of the rendezvous server")
	f.BoolVar(&flagReceiveOnly, "receive-only", false, "Do not capture local media")
	f.StringVar(&flagRecordDir, "record-dir", "", "Record the remote audio and video under this directory")
	f.StringVar(&flagWebURL, "web-url", "", "Base URL of the web client, used to build join links")
	f.StringVar(&flagWebhook, "webhook", "", "POST each room announcement to this URL")
	f.StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
	f.BoolVar(&flagKeepGoing, "keep-going", false, "Keep waiting for triggers when the server is unreachable")
	f.BoolVar(&flagOnce, "once", false, "Run a single call without waiting for a trigger")
	f.BoolVar(&flagPlain, "plain", false, "Read triggers as lines and disable the live view")

	rootCmd.AddCommand(callCmd)
}

func runCalls(ctx context.Context) error {
	cfg, err := LoadConfig(config.Options{
		ConfigFile:  flagConfig,
		Server:      flagServer,
		Room:        flagRoom,
		Timeout:     flagTimeout,
		STUNServer:  flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		ForceRelay:  flagRelay,
		TLSInsecure: flagInsecure,
		ReceiveOnly: flagReceiveOnly,
		RecordDir:   flagRecordDir,
		WebURL:      flagWebURL,
		WebhookURL:  flagWebhook,
		MetricsAddr: flagMetricsAddr,
		KeepGoing:   flagKeepGoing,
	})
	if err != nil {
		return err
	}

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	interactive := !flagPlain && isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())

	var history ui.History
	opts := []session.Option{
		session.WithMetrics(m),
		session.WithReports(func(r session.Report) {
			history.Add(ui.HistoryEntry{
				Started:  r.Started,
				Room:     r.Room,
				Outcome:  string(r.Outcome),
				Duration: r.Duration(),
			})
			ui.RenderCallSummary(ui.CallSummary{
				Session:  r.SessionID,
				Room:     r.Room,
				Outcome:  string(r.Outcome),
				Path:     r.Path,
				Emitted:  r.Emitted,
				Duration: r.Duration().Round(time.Millisecond).String(),
				Err:      r.Err,
			})
		}),
	}

	out := &liveView{out: os.Stdout}
	if interactive {
		opts = append(opts, session.WithObserver(out.observe))
	}
	controller := session.New(cfg, NewDeps(cfg, out), opts...)

	var trig trigger.Trigger
	switch {
	case flagOnce:
		trig = &trigger.Once{}
	case interactive:
		trig = trigger.NewKey(os.Stdin, os.Stdout)
	default:
		trig = trigger.NewLine(os.Stdin)
	}

	ui.PrintInfof("Using rendezvous server %s", cfg.ServerURL)
	if cfg.Media.ReceiveOnly {
		ui.PrintWarning("Receive-only: the caller will not see or hear this device")
	}
	err = controller.Loop(ctx, trig)

	if history.Len() > 1 {
		fmt.Println()
		history.Render(os.Stdout)
	}
	return err
}
