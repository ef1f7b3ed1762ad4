package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"text/template"
	"time"

	"go.uber.org/zap"

	"referralhub/internal/config"
	"referralhub/internal/metrics"
	"referralhub/internal/repository"
)

type EventType string

const (
	EventWelcome           EventType = "welcome"
	EventRefereeSignup     EventType = "referee_signup"
	EventRewardEarned      EventType = "reward_earned"
	EventMilestoneAchieved EventType = "milestone_achieved"
	EventRefereePurchase   EventType = "referee_purchase"
)

// Event is a lifecycle notification. DedupeKey identifies the business fact, so the same fact is mailed
// at most once even when several requests report it.
type Event struct {
	Type          EventType
	To            string
	DedupeKey     string
	RecipientName string
	ReferralCode  string
	RefereeEmail  string
	Amount        string
	Description   string
	Count         int64
}

// Notifier accepts events for asynchronous delivery.
type Notifier interface {
	Dispatch(events ...Event)
}

var ErrDispatcherClosed = errors.New("notification dispatcher is closed")

type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var mailTemplates = map[EventType]mailTemplate{
	EventWelcome: newMailTemplate(
		"Welcome to Purrify Referrals! Your code: {{.ReferralCode}}",
		`Hi {{or .RecipientName "there"}}!

Thank you for joining our referral program. Your referral code is {{.ReferralCode}}.

Friends who use it get a free trial, and you earn a credit when they make their first purchase.
Every few successful referrals unlock a free product.

The Purrify Team
`),
	EventRefereeSignup: newMailTemplate(
		"Great news! Someone signed up with your code",
		`Hi {{or .RecipientName "there"}}!

{{.RefereeEmail}} just signed up using your referral code {{.ReferralCode}}.
You will earn a reward as soon as they make their first purchase.

The Purrify Team
`),
	EventRewardEarned: newMailTemplate(
		"You earned a referral reward!",
		`Hi {{or .RecipientName "there"}}!

{{.Description}}

Reward value: {{.Amount}}

The Purrify Team
`),
	EventMilestoneAchieved: newMailTemplate(
		"Milestone reached - free product unlocked!",
		`Hi {{or .RecipientName "there"}}!

You have completed {{.Count}} successful referrals.
{{.Description}} ({{.Amount}} value)

The Purrify Team
`),
	EventRefereePurchase: newMailTemplate(
		"Someone bought Purrify with your code",
		`Hi {{or .RecipientName "there"}}!

{{.RefereeEmail}} completed a purchase with your referral code {{.ReferralCode}}.
You have reached the referral credit limit, so no new credit was added this time.

The Purrify Team
`),
}

func newMailTemplate(subject, body string) mailTemplate {
	return mailTemplate{
		subject: template.Must(template.New("subject").Parse(subject)),
		body:    template.Must(template.New("body").Parse(body)),
	}
}

func renderEvent(ev Event) (string, string, error) {
	tpl, ok := mailTemplates[ev.Type]
	if !ok {
		return "", "", fmt.Errorf("unknown notification type %q", ev.Type)
	}
	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, ev); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := tpl.body.Execute(&body, ev); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject.String(), body.String(), nil
}

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	DedupeTTL   time.Duration
	SendTimeout time.Duration
}

func DispatcherConfigFrom(cfg config.NotifyConfig) DispatcherConfig {
	return DispatcherConfig{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		DedupeTTL:   cfg.DedupeTTL,
		SendTimeout: cfg.SendTimeout,
	}
}

// Dispatcher delivers events on a fixed worker pool. Dispatch never blocks the caller.
type Dispatcher struct {
	sender MailSender
	state  repository.StateStore
	logger *zap.Logger
	cfg    DispatcherConfig

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	wg     sync.WaitGroup
}

func NewDispatcher(sender MailSender, state repository.StateStore, logger *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	d := &Dispatcher{
		sender: sender,
		state:  state,
		logger: logger,
		cfg:    cfg,
		queue:  make(chan Event, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) Dispatch(events ...Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, ev := range events {
		if d.closed {
			metrics.NotificationsTotal.WithLabelValues(string(ev.Type), "dropped").Inc()
			d.logger.Warn("notification dropped", zap.String("type", string(ev.Type)), zap.Error(ErrDispatcherClosed))
			continue
		}
		select {
		case d.queue <- ev:
		default:
			metrics.NotificationsTotal.WithLabelValues(string(ev.Type), "dropped").Inc()
			d.logger.Warn("notification queue full, event dropped",
				zap.String("type", string(ev.Type)),
				zap.String("dedupe_key", ev.DedupeKey),
			)
		}
	}
}

// Close stops accepting events and waits for queued ones to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	log := d.logger.With(zap.String("type", string(ev.Type)), zap.String("dedupe_key", ev.DedupeKey))

	key := ""
	if ev.DedupeKey != "" {
		key = "notify:" + ev.DedupeKey
		first, err := d.state.SetIfAbsent(ctx, key, []byte(time.Now().UTC().Format(time.RFC3339)), d.cfg.DedupeTTL)
		if err != nil {
			log.Warn("notification dedupe check failed", zap.Error(err))
			key = ""
		} else if !first {
			metrics.NotificationsTotal.WithLabelValues(string(ev.Type), "duplicate").Inc()
			return
		}
	}

	subject, body, err := renderEvent(ev)
	if err == nil {
		err = d.sender.Send(ctx, ev.To, subject, body)
	}
	if err != nil {
		if key != "" {
			if delErr := d.state.Delete(context.Background(), key); delErr != nil {
				log.Warn("failed to release notification dedupe key", zap.Error(delErr))
			}
		}
		metrics.NotificationsTotal.WithLabelValues(string(ev.Type), "failed").Inc()
		log.Warn("notification delivery failed", zap.Error(err))
		return
	}

	metrics.NotificationsTotal.WithLabelValues(string(ev.Type), "sent").Inc()
	log.Debug("notification sent")
}

var _ Notifier = (*Dispatcher)(nil)
