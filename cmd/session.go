package cmd

import (
	"io"
	"log/slog"
	"sync"

	"github.com/BioHazard786/doorcall/internal/callerr"
	"github.com/BioHazard786/doorcall/internal/config"
	"github.com/BioHazard786/doorcall/internal/events"
	"github.com/BioHazard786/doorcall/internal/media"
	"github.com/BioHazard786/doorcall/internal/negotiator"
	"github.com/BioHazard786/doorcall/internal/notify"
	"github.com/BioHazard786/doorcall/internal/session"
	"github.com/BioHazard786/doorcall/internal/signaling"
	"github.com/BioHazard786/doorcall/internal/ui"
	"github.com/pion/webrtc/v4"
)

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, callerr.Wrap("load config", err, opts.ConfigFile)
	}
	dir, err := media.ValidateRecordDir(cfg.Media.RecordDir)
	if err != nil {
		return nil, callerr.Wrap("load config", err, "record_dir")
	}
	cfg.Media.RecordDir = dir
	return cfg, nil
}

// NewDeps builds the per-call collaborators from cfg. Notices are written to out.
func NewDeps(cfg *config.Config, out io.Writer) session.Deps {
	log := slog.Default()
	ice := negotiator.ICEFromConfig(cfg)
	if ice.Policy == webrtc.ICETransportPolicyRelay && !cfg.ForceRelay {
		log.Info("tunnel or CGNAT interface detected, forcing relay")
	}
	constraints := media.ConstraintsFromConfig(cfg.Media)

	return session.Deps{
		Signaling: func(q *events.Queue) signaling.Channel {
			return signaling.NewClient(q,
				signaling.WithTLSInsecure(cfg.TLSInsecure),
				signaling.WithLogger(log),
			)
		},
		Media: func(sessionID string) session.MediaBridge {
			return media.NewBridge(media.Options{
				Constraints: constraints,
				RecordDir:   cfg.Media.RecordDir,
				Session:     sessionID,
				Logger:      log,
			})
		},
		Negotiator: func(codecs negotiator.CodecRegistrar) (session.Negotiator, error) {
			return negotiator.New(ice, codecs, log)
		},
		Notifier: NewNotifier(cfg, out),
	}
}

// NewNotifier always announces on the terminal and, when configured, on the webhook.
func NewNotifier(cfg *config.Config, out io.Writer) notify.Notifier {
	notifiers := notify.Multi{notify.NewTerminal(out)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.WebhookURL, nil))
	}
	return notifiers
}

// liveView shows a CallView for the duration of each call. While a view is
// running, writes go above it instead of tearing through it.
type liveView struct {
	mu   sync.Mutex
	out  io.Writer
	view *ui.CallView
}

func (l *liveView) observe(from, to session.State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if from == session.StateIdle && l.view == nil {
		l.view = ui.NewCallView(l.out)
		l.view.Start()
	}
	if l.view == nil {
		return
	}
	l.view.SetState(to)
	if to == session.StateIdle {
		l.view.Stop()
		l.view = nil
	}
}

func (l *liveView) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.view != nil {
		return l.view.Write(p)
	}
	return l.out.Write(p)
}
