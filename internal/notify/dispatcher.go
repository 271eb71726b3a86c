// Package notify implements the periodic signup-notification dispatcher.
//
// On every tick the dispatcher snapshots the users whose pending flag is
// set, emails each of them, and then clears the flag with one bulk write
// evaluated at clear time. Two consequences of that shape are deliberate and
// kept visible rather than papered over:
//
//   - A user whose flag is set again while a tick is in flight has the fresh
//     flag wiped by the bulk clear, losing one notification.
//   - Concurrently running ticks (e.g. two processes) can both snapshot the
//     same user and double-send.
//
// A send failure does not abort the batch and does not keep the flag set:
// delivery is at most once per flag cycle. Harden by claiming users one at a
// time
// (atomic compare-and-clear) if these guarantees are ever not enough.
package notify

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avasek/storefront/internal/mail"
	"github.com/avasek/storefront/internal/store"
	"github.com/avasek/storefront/internal/telemetry"
)

// Defaults for Config fields left zero.
const (
	DefaultInterval    = 10 * time.Second
	DefaultConcurrency = 4
	DefaultSiteName    = "Storefront"
)

// Config holds Dispatcher configuration.
// A zero value is a valid configuration, see constants for default values.
type Config struct {
	// Interval between ticks. The default is deliberately short for fast
	// feedback; lengthen it in a real deployment.
	Interval time.Duration

	// Concurrency bounds parallel mail sends within one tick.
	Concurrency int

	// Subject of the notification email.
	Subject string

	// BodyTemplate overrides mail.DefaultSignupTemplate if non-empty.
	BodyTemplate string

	// SiteName is rendered into the email body.
	SiteName string
}

// Dispatcher is the periodic signup-notification job.
// It's safe to use concurrently with the request pipeline; the user store is
// the only shared resource.
type Dispatcher struct {
	users   store.Users
	mailer  mail.Mailer
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDispatcher creates a Dispatcher.
// This function panics if users or mailer are nil.
func NewDispatcher(users store.Users, mailer mail.Mailer, cfg Config, logger *slog.Logger, metrics *telemetry.Metrics) *Dispatcher {
	if users == nil {
		panic("users store must be provided")
	}
	if mailer == nil {
		panic("mailer must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Subject == "" {
		cfg.Subject = mail.DefaultSignupSubject
	}
	if cfg.SiteName == "" {
		cfg.SiteName = DefaultSiteName
	}

	return &Dispatcher{
		users:   users,
		mailer:  mailer,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the tick loop. Ticks run one after another in a single
// goroutine; a tick that outlasts the interval delays the next one.
func (d *Dispatcher) Start() {
	go d.loop()
}

// Close stops the tick loop and waits for an in-flight tick to finish.
func (d *Dispatcher) Close() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Dispatcher) loop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := d.RunTick(context.Background()); err != nil {
				d.logger.Error("notification tick failed", "error", err)
			}
		case <-d.stopCh:
			return
		}
	}
}

// RunTick executes one dispatcher tick: snapshot, send, bulk clear.
// An empty snapshot sends nothing and writes nothing. Individual send
// failures are logged and do not abort the batch; the failed users' flags
// are still cleared by the bulk write.
func (d *Dispatcher) RunTick(ctx context.Context) error {
	d.observeTick()

	pending, err := d.users.FindPending(ctx)
	if err != nil {
		return err
	}
	d.observePending(len(pending))
	if len(pending) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for _, u := range pending {
		g.Go(func() error {
			if err := d.send(gctx, u); err != nil {
				// Logged, not returned: one failed send must not cancel
				// the rest of the batch.
				d.logger.Error("signup notification failed",
					"user_id", u.ID.Hex(),
					"email", u.Email,
					"error", err,
				)
				d.observeSend(false)
				return nil
			}
			d.observeSend(true)
			return nil
		})
	}
	_ = g.Wait()

	// Clears every flag set at this moment, not just the snapshot. A flag
	// set between the snapshot and this write is lost; see the package doc.
	cleared, err := d.users.ClearAllPending(ctx)
	if err != nil {
		return err
	}

	d.logger.Info("notification tick complete",
		"snapshot", len(pending),
		"cleared", cleared,
	)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, u *store.User) error {
	body, err := mail.SignupBody(d.cfg.BodyTemplate, mail.SignupParams{
		Email:    u.Email,
		SiteName: d.cfg.SiteName,
	})
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, u.Email, d.cfg.Subject, body)
}

func (d *Dispatcher) observeTick() {
	if d.metrics != nil {
		d.metrics.TicksTotal.Inc()
	}
}

func (d *Dispatcher) observePending(n int) {
	if d.metrics != nil {
		d.metrics.PendingUsers.Set(float64(n))
	}
}

func (d *Dispatcher) observeSend(ok bool) {
	if d.metrics == nil {
		return
	}
	if ok {
		d.metrics.EmailsSent.Inc()
	} else {
		d.metrics.EmailFailures.Inc()
	}
}
