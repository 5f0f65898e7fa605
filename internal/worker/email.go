package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/broker"
	"github.com/jmehdipour/wallet-notifier/internal/lock"
	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/mailer"
	"github.com/jmehdipour/wallet-notifier/internal/metrics"
	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmehdipour/wallet-notifier/internal/render"
	"github.com/jmehdipour/wallet-notifier/internal/repository"
	"github.com/jmehdipour/wallet-notifier/internal/resolver"
	"github.com/jmehdipour/wallet-notifier/internal/tokens"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotFound    = errors.New("notification not found")
	ErrAlreadySent = errors.New("notification already sent")
	ErrLocked      = errors.New("notification is being delivered elsewhere")
)

// ReportSink receives every per-recipient outcome. Implementations must not block.
type ReportSink interface {
	Report(r model.DeliveryReport)
}

// Dependencies are the collaborators an EmailService is built from. Reports, Tokens,
// Templates and Logger are optional.
type Dependencies struct {
	Broker      broker.MessageBroker
	Wallets     resolver.WalletReader
	Preferences resolver.PreferenceReader
	Transport   mailer.Transport
	Locker      lock.Locker
	Outbox      repository.OutboxRepository
	Tokens      tokens.Registry
	Templates   render.TemplateSource
	Reports     ReportSink
	Logger      *zap.Logger
}

type Options struct {
	From                   string
	SubjectPrefix          string
	DefaultLanguage        string
	TxURLTemplates         map[string]map[string]string
	MinSignersForProposals int
	SingleSignerSuppress   []model.Kind

	LockPrefix  string
	LockTTL     time.Duration // default 60s; must exceed SendTimeout
	SendTimeout time.Duration // default 20s

	Workers              int // events processed concurrently; 1 keeps arrival order
	QueueSize            int
	RecipientConcurrency int
}

// Summary counts per-recipient outcomes for one event.
type Summary struct {
	Sent       int
	Unsent     int
	LockDenied int
	Duplicate  int
	Dropped    int
	Errors     int
}

func (s *Summary) add(o model.Outcome) {
	switch o {
	case model.OutcomeSent:
		s.Sent++
	case model.OutcomeUnsent:
		s.Unsent++
	case model.OutcomeLockDenied:
		s.LockDenied++
	case model.OutcomeDuplicate:
		s.Duplicate++
	case model.OutcomeDropped:
		s.Dropped++
	default:
		s.Errors++
	}
}

// EmailService consumes wallet events and delivers one email per distinct recipient address,
// at most once across every instance sharing the same lock store and outbox.
type EmailService struct {
	deps     Dependencies
	opts     Options
	resolver *resolver.Resolver
	renderer *render.Renderer
	log      *zap.Logger
	now      func() time.Time
}

func NewEmailService(deps Dependencies, opts Options) (*EmailService, error) {
	switch {
	case deps.Wallets == nil, deps.Preferences == nil:
		return nil, errors.New("email service: wallets and preferences are required")
	case deps.Transport == nil:
		return nil, errors.New("email service: transport is required")
	case deps.Locker == nil:
		return nil, errors.New("email service: locker is required")
	case deps.Outbox == nil:
		return nil, errors.New("email service: outbox is required")
	}
	if deps.Tokens == nil {
		deps.Tokens = tokens.NewStatic(nil)
	}
	if deps.Templates == nil {
		deps.Templates = render.DefaultTemplates()
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 20 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 60 * time.Second
	}
	if opts.LockTTL <= opts.SendTimeout {
		return nil, fmt.Errorf("email service: lock ttl %s must exceed send timeout %s", opts.LockTTL, opts.SendTimeout)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.RecipientConcurrency <= 0 {
		opts.RecipientConcurrency = 8
	}

	log := logger.Or(deps.Logger).With(zap.String("component", "email"))

	return &EmailService{
		deps: deps,
		opts: opts,
		resolver: resolver.New(deps.Wallets, deps.Preferences, resolver.Config{
			DefaultLanguage:        opts.DefaultLanguage,
			MinSignersForProposals: opts.MinSignersForProposals,
			SingleSignerSuppress:   opts.SingleSignerSuppress,
		}, log),
		renderer: render.New(deps.Templates, deps.Tokens, render.Config{
			From:            opts.From,
			SubjectPrefix:   opts.SubjectPrefix,
			DefaultLanguage: opts.DefaultLanguage,
			TxURLTemplates:  opts.TxURLTemplates,
		}, log),
		log: log,
		now: time.Now,
	}, nil
}

// Run subscribes to the broker and blocks until ctx is cancelled. The bus handler only
// enqueues; Workers goroutines drain the queue. Events in flight at shutdown are finished.
func (s *EmailService) Run(ctx context.Context) error {
	if s.deps.Broker == nil {
		return errors.New("email service: broker is required to run")
	}

	queue := make(chan model.Event, s.opts.QueueSize)
	unsub, err := s.deps.Broker.Subscribe(func(_ context.Context, payload []byte) {
		ev, ok := s.decode(payload)
		if !ok {
			return
		}
		select {
		case queue <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer unsub()

	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-queue:
					s.Process(context.WithoutCancel(ctx), ev)
				}
			}
		}()
	}

	s.log.Info("email service started",
		zap.Int("workers", s.opts.Workers), zap.Int("queue_size", s.opts.QueueSize))

	<-ctx.Done()
	wg.Wait()
	s.log.Info("email service stopped")
	return nil
}

// Handle decodes payload and processes it inline; usable directly as a broker.Handler.
func (s *EmailService) Handle(ctx context.Context, payload []byte) {
	if ev, ok := s.decode(payload); ok {
		s.Process(ctx, ev)
	}
}

func (s *EmailService) decode(payload []byte) (model.Event, bool) {
	ev, err := model.DecodeEvent(payload)
	if err != nil {
		s.log.Warn("bad event payload", zap.Error(err))
		return model.Event{}, false
	}
	if !ev.Kind.Known() {
		s.log.Debug("ignoring event kind", zap.String("kind", ev.Kind.String()))
		return model.Event{}, false
	}
	return ev, true
}

// Process fans one event out to its recipients. Failures stay inside the returned summary.
func (s *EmailService) Process(ctx context.Context, ev model.Event) Summary {
	var sum Summary
	if !ev.Kind.Known() {
		return sum
	}
	log := s.log.With(zap.String("event_id", ev.Identity()), zap.String("kind", ev.Kind.String()))

	w, recipients, err := s.resolver.Resolve(ctx, ev)
	if err != nil {
		log.Error("resolve recipients", zap.Error(err))
		metrics.NotificationsTotal.WithLabelValues(model.OutcomeError.String(), ev.Kind.String()).Inc()
		sum.add(model.OutcomeError)
		return sum
	}
	recipients = resolver.DedupByAddress(recipients)
	if len(recipients) == 0 {
		log.Debug("no recipients")
		return sum
	}

	outcomes := make([]model.Outcome, len(recipients))
	var g errgroup.Group
	g.SetLimit(s.opts.RecipientConcurrency)
	for i, p := range recipients {
		g.Go(func() error {
			outcomes[i] = s.deliver(ctx, ev, *w, p)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		sum.add(o)
	}
	log.Info("event processed",
		zap.Int("recipients", len(recipients)),
		zap.Int("sent", sum.Sent),
		zap.Int("unsent", sum.Unsent),
		zap.Int("lock_denied", sum.LockDenied),
		zap.Int("duplicate", sum.Duplicate),
		zap.Int("dropped", sum.Dropped),
		zap.Int("errors", sum.Errors),
	)
	return sum
}

func (s *EmailService) deliver(ctx context.Context, ev model.Event, w model.Wallet, p model.CopayerPreference) model.Outcome {
	n, err := s.renderer.Render(ctx, ev, w, p)
	if err != nil {
		if render.IsDrop(err) {
			s.log.Debug("notification dropped", zap.String("to", p.Email), zap.Error(err))
			s.observe(model.OutcomeDropped, ev.Identity(), ev.Kind, w.ID, p.Email, "", err)
			return model.OutcomeDropped
		}
		s.log.Error("render failed", zap.String("to", p.Email), zap.Error(err))
		s.observe(model.OutcomeError, ev.Identity(), ev.Kind, w.ID, p.Email, "", err)
		return model.OutcomeError
	}
	n.CreatedOn = s.now().UTC()

	outcome, _ := s.sendLocked(ctx, n, true)
	return outcome
}

// sendLocked runs LockPending → send → outbox update for n. fresh means n was just rendered
// and must be recorded before sending; otherwise n is an existing unsent record.
func (s *EmailService) sendLocked(ctx context.Context, n *model.RenderedNotification, fresh bool) (model.Outcome, error) {
	log := s.log.With(zap.String("notification_id", n.ID), zap.String("event_id", n.EventID), zap.String("to", n.To))
	finish := func(o model.Outcome, cause error) (model.Outcome, error) {
		s.observe(o, n.EventID, n.Kind, n.WalletID, n.To, n.ID, cause)
		return o, cause
	}

	key := lock.Key(s.opts.LockPrefix, n.EventID, n.To)
	ok, err := s.deps.Locker.Acquire(ctx, key, s.opts.LockTTL)
	switch {
	case err != nil:
		metrics.LockAcquireTotal.WithLabelValues("error").Inc()
		log.Error("lock acquire failed", zap.Error(err))
		return finish(model.OutcomeLockDenied, ErrLocked)
	case !ok:
		metrics.LockAcquireTotal.WithLabelValues("denied").Inc()
		log.Debug("lock held by another instance")
		return finish(model.OutcomeLockDenied, ErrLocked)
	}
	metrics.LockAcquireTotal.WithLabelValues("acquired").Inc()
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.deps.Locker.Release(rctx, key); err != nil {
			log.Warn("lock release failed", zap.Error(err))
		}
	}()

	if fresh {
		created, err := s.deps.Outbox.Record(ctx, n)
		if err != nil {
			log.Error("outbox record failed", zap.Error(err))
			return finish(model.OutcomeError, err)
		}
		if !created {
			log.Debug("already recorded")
			return finish(model.OutcomeDuplicate, nil)
		}
	} else {
		cur, err := s.deps.Outbox.Get(ctx, n.ID)
		if err != nil {
			return finish(model.OutcomeError, err)
		}
		if cur == nil {
			return model.OutcomeError, ErrNotFound
		}
		if cur.Sent {
			return finish(model.OutcomeDuplicate, ErrAlreadySent)
		}
	}

	if err := s.send(ctx, n.Message()); err != nil {
		log.Warn("send failed, left unsent", zap.Error(err))
		if ferr := s.deps.Outbox.RecordFailure(ctx, n.ID, err.Error()); ferr != nil {
			log.Error("outbox record failure failed", zap.Error(ferr))
		}
		return finish(model.OutcomeUnsent, err)
	}

	if err := s.deps.Outbox.MarkSent(ctx, n.ID); err != nil {
		log.Error("sent but outbox not updated", zap.Error(err))
	}
	log.Debug("sent")
	return finish(model.OutcomeSent, nil)
}

// send bounds the transport call by SendTimeout even if the transport ignores ctx, and turns a
// panic into an error.
func (s *EmailService) send(ctx context.Context, m model.MailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("transport panic: %v", r)
			}
		}()
		errCh <- s.deps.Transport.Send(ctx, m)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = fmt.Errorf("send: %w", ctx.Err())
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.SendDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return err
}

// Resend retries one unsent outbox record with its stored content.
func (s *EmailService) Resend(ctx context.Context, id string) (model.Outcome, error) {
	n, err := s.deps.Outbox.Get(ctx, id)
	if err != nil {
		return model.OutcomeError, fmt.Errorf("outbox get: %w", err)
	}
	if n == nil {
		return model.OutcomeError, ErrNotFound
	}
	if n.Sent {
		return model.OutcomeDuplicate, ErrAlreadySent
	}
	return s.sendLocked(ctx, n, false)
}

// ListUnsent exposes the outbox for operators.
func (s *EmailService) ListUnsent(ctx context.Context, limit int) ([]model.RenderedNotification, error) {
	return s.deps.Outbox.ListUnsent(ctx, limit)
}

func (s *EmailService) observe(o model.Outcome, eventID string, kind model.Kind, walletID, to, notificationID string, cause error) {
	metrics.NotificationsTotal.WithLabelValues(o.String(), kind.String()).Inc()
	if s.deps.Reports == nil {
		return
	}
	r := model.DeliveryReport{
		NotificationID: notificationID,
		EventID:        eventID,
		Kind:           kind.String(),
		WalletID:       walletID,
		To:             to,
		Outcome:        o.String(),
		CreatedAt:      s.now().UTC(),
	}
	if cause != nil {
		r.Error = cause.Error()
	}
	s.deps.Reports.Report(r)
}
