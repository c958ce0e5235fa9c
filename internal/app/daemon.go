package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/victorvcruz/clipsync/internal/clipboard"
	"github.com/victorvcruz/clipsync/internal/codec"
	syncTypes "github.com/victorvcruz/clipsync/internal/sync"
	clientserver "github.com/victorvcruz/clipsync/internal/sync/client-server"
)

// Daemon wires the send path (monitor -> codec -> client) and the receive
// path (server -> codec -> monitor) and owns their shutdown.
type Daemon struct {
	config  *Config
	codec   *codec.Codec
	monitor *clipboard.Monitor
	sender  syncTypes.ClipboardSender
	peerURL string
	server  *clientserver.Server
	stats   *syncTypes.Stats
	logger  *slog.Logger

	// outbox holds at most one undelivered change; a newer change
	// replaces it.
	outbox chan clipboard.Change
	ready  chan struct{}
}

// NewDaemon builds a Daemon from a validated config.
func NewDaemon(config *Config, board clipboard.Clipboard, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Key() == nil {
		return nil, &ConfigError{Field: "aes_key", Err: fmt.Errorf("config has not been validated")}
	}
	keyBytes, err := config.Key().Bytes()
	if err != nil {
		return nil, &ConfigError{Field: "aes_key", Err: err}
	}

	var opts []codec.Option
	if iv := config.StaticIV(); iv != nil {
		opts = append(opts, codec.WithStaticIV(iv))
	}
	c, err := codec.New(keyBytes, opts...)
	if err != nil {
		return nil, &ConfigError{Field: "aes_key", Err: err}
	}

	stats := syncTypes.NewStats()
	monitor := clipboard.NewMonitor(board, clipboard.MonitorOptions{
		Interval: config.PollInterval.Std(),
		Logger:   logger.With("component", "monitor"),
	})
	client := clientserver.NewClient(config.PeerIP, config.PeerPort, clientserver.ClientOptions{
		Timeout: config.SendTimeout.Std(),
		Retries: config.SendRetries,
		Logger:  logger.With("component", "client"),
		Stats:   stats,
	})
	server := clientserver.NewServer(c, monitor, clientserver.ServerOptions{
		Addr:            config.ListenAddr(),
		ShutdownTimeout: config.ShutdownGrace.Std(),
		Logger:          logger.With("component", "server"),
		Stats:           stats,
	})

	d := &Daemon{
		config:  config,
		codec:   c,
		monitor: monitor,
		sender:  client,
		peerURL: client.URL(),
		server:  server,
		stats:   stats,
		logger:  logger,
		outbox:  make(chan clipboard.Change, 1),
		ready:   make(chan struct{}),
	}
	monitor.SetOnChange(d.enqueue)
	return d, nil
}

// Run starts the inbound server and the monitor, then blocks until ctx is
// done. Only a bind failure is returned as an error. Run may be called once.
func (d *Daemon) Run(ctx context.Context) error {
	if d.codec.Legacy() {
		d.logger.Warn("legacy static IV framing enabled; every message reuses the configured IV")
	} else if d.config.IV != "" {
		d.logger.Warn("ignoring configured iv; each message uses a fresh random IV")
	}

	if err := d.server.Start(); err != nil {
		return err
	}
	d.logger.Info("starting clipboard sync", "config", d.config, "listen", d.server.Addr().String())

	sendCtx, cancelSend := context.WithCancel(context.Background())
	defer cancelSend()
	stopSending := make(chan struct{})
	senderDone := make(chan struct{})
	go d.sendLoop(sendCtx, stopSending, senderDone)

	if err := d.monitor.Start(ctx); err != nil {
		close(stopSending)
		<-senderDone
		d.server.Stop(context.Background()) //nolint:errcheck
		return err
	}

	close(d.ready)

	<-ctx.Done()
	d.logger.Info("shutting down")

	d.monitor.Stop()
	close(stopSending)

	grace := d.config.ShutdownGrace.Std()
	deadline := time.Now().Add(grace)
	if err := d.server.Stop(context.Background()); err != nil {
		d.logger.Warn("inbound requests did not finish in time", "error", err)
	}

	select {
	case <-senderDone:
	case <-time.After(time.Until(deadline)):
		d.logger.Warn("abandoning in-flight send")
		cancelSend()
		<-senderDone
	}

	health := d.stats.Health()
	d.logger.Info("clipboard sync stopped",
		"sent", health.Sent,
		"send_failures", health.SendFailures,
		"received", health.Received,
		"rejected", health.Rejected,
	)
	return nil
}

// Ready is closed once the server is listening and the monitor is polling.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr returns the inbound listener address. Call it after Ready.
func (d *Daemon) Addr() string {
	if addr := d.server.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (d *Daemon) Stats() *syncTypes.Stats {
	return d.stats
}

// enqueue runs on the polling goroutine and never blocks: if a change is
// still waiting for the sender it is replaced by the newer one.
func (d *Daemon) enqueue(change clipboard.Change) {
	for {
		select {
		case d.outbox <- change:
			return
		default:
		}
		select {
		case stale := <-d.outbox:
			d.logger.Debug("replacing undelivered clipboard change",
				"fingerprint", clipboard.Fingerprint(stale.Content),
			)
		default:
		}
	}
}

func (d *Daemon) sendLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case change := <-d.outbox:
			d.deliver(ctx, change)
		}
	}
}

func (d *Daemon) deliver(ctx context.Context, change clipboard.Change) {
	fingerprint := clipboard.Fingerprint(change.Content)

	payload, err := d.codec.Encrypt(change.Content)
	if err != nil {
		d.stats.IncSendFailure()
		d.logger.Error("failed to encrypt clipboard", "fingerprint", fingerprint, "error", err)
		return
	}

	if size := syncTypes.RequestSize(payload); size > syncTypes.MaxRequestBytes {
		d.stats.IncSendFailure()
		d.logger.Warn("clipboard too large to sync, dropping change",
			"fingerprint", fingerprint,
			"length", len(change.Content),
			"request_bytes", size,
			"limit", syncTypes.MaxRequestBytes,
		)
		return
	}

	if err := d.sender.SendClipboard(ctx, payload); err != nil {
		d.logger.Warn("failed to sync clipboard, dropping change",
			"fingerprint", fingerprint,
			"error", err,
		)
		return
	}
	d.logger.Info("sent clipboard",
		"peer", d.peerURL,
		"length", len(change.Content),
		"fingerprint", fingerprint,
		"latency", time.Since(change.ObservedAt),
	)
}
