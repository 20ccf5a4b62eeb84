package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
	"github.com/couchcryptid/tsunami-alert-service/internal/observability"
)

const (
	defaultSendTimeout = 10 * time.Second
	defaultAlertTTL    = 6 * time.Hour

	// WarningNoContacts is set on a Summary when no contact has a usable channel.
	WarningNoContacts = "no eligible contacts; alert left pending"
)

// Options configures an Orchestrator. Zero values select defaults.
type Options struct {
	Senders     map[domain.Channel]ChannelSender
	VoicePolicy VoicePolicy
	SendTimeout time.Duration
	AlertTTL    time.Duration
	Clock       clockwork.Clock
	NewID       func() string

	// OnComplete is called from the send goroutine after each delivery
	// finishes and its log is updated.
	OnComplete func(Completion)
}

// Summary is returned to the caller once every delivery has been spawned.
type Summary struct {
	AlertID        string             `json:"alertId"`
	Status         domain.AlertStatus `json:"status"`
	RecipientCount int                `json:"recipientCount"`
	DeliveryCount  int                `json:"deliveryCount"`
	LogIDs         []string           `json:"logIds"`
	Warning        string             `json:"warning,omitempty"`
}

// Completion describes one finished delivery.
type Completion struct {
	AlertID   string
	LogID     string
	ContactID string
	Channel   domain.Channel
	Status    domain.DeliveryStatus
	Err       error
}

// Outcome aggregates the completions of one dispatch.
type Outcome struct {
	Attempted  int `json:"attempted"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Dispatch is the handle for an accepted alert.
type Dispatch struct {
	Summary Summary

	mu        sync.Mutex
	outcome   Outcome
	remaining int
	done      chan struct{}
}

func newDispatch(summary Summary, pending int) *Dispatch {
	d := &Dispatch{Summary: summary, remaining: pending, done: make(chan struct{})}
	if pending == 0 {
		close(d.done)
	}
	return d
}

// Done is closed when every delivery has completed.
func (d *Dispatch) Done() <-chan struct{} { return d.done }

// Wait blocks until every delivery has completed or ctx ends. On ctx
// expiry it returns the partial outcome together with ctx.Err().
func (d *Dispatch) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-d.done:
		return d.Outcome(), nil
	case <-ctx.Done():
		return d.Outcome(), ctx.Err()
	}
}

// Outcome returns the completions recorded so far.
func (d *Dispatch) Outcome() Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outcome
}

func (d *Dispatch) record(c Completion) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outcome.Attempted++
	if c.Status == domain.DeliveryFailed {
		d.outcome.Failed++
	} else {
		d.outcome.Successful++
	}
	d.remaining--
	if d.remaining == 0 {
		close(d.done)
	}
}

// Orchestrator creates alerts and fans them out to channel senders.
type Orchestrator struct {
	store       Store
	senders     map[domain.Channel]ChannelSender
	voice       VoicePolicy
	sendTimeout time.Duration
	alertTTL    time.Duration
	clock       clockwork.Clock
	newID       func() string
	onComplete  func(Completion)
	logger      *slog.Logger
	metrics     *observability.Metrics

	inflight sync.WaitGroup
}

// New creates an Orchestrator. Channels without a sender get an
// UnconfiguredSender.
func New(store Store, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		senders:     make(map[domain.Channel]ChannelSender, len(domain.Channels)),
		voice:       opts.VoicePolicy,
		sendTimeout: opts.SendTimeout,
		alertTTL:    opts.AlertTTL,
		clock:       opts.Clock,
		newID:       opts.NewID,
		onComplete:  opts.OnComplete,
		logger:      logger,
		metrics:     metrics,
	}
	for _, ch := range domain.Channels {
		if s, ok := opts.Senders[ch]; ok && s != nil {
			o.senders[ch] = s
		} else {
			o.senders[ch] = UnconfiguredSender{Channel: ch}
		}
	}
	if o.voice == nil {
		o.voice = MinSeverityVoicePolicy{Min: domain.SeverityCritical}
	}
	if o.sendTimeout <= 0 {
		o.sendTimeout = defaultSendTimeout
	}
	if o.alertTTL <= 0 {
		o.alertTTL = defaultAlertTTL
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o
}

// Dispatch validates and persists the alert, creates one pending delivery log
// per (contact, channel), spawns the sends and marks the alert sent. It
// returns once every send is running; use the handle to wait for results.
//
// An active alert for the same asset and event yields a *domain.ConflictError
// and no new logs. Store failures are wrapped in ErrPersistence; when a log
// write fails the alert is expired first so a later dispatch can replace it.
// If only the final status update fails, the handle is returned with the
// summary still reporting pending.
func (o *Orchestrator) Dispatch(ctx context.Context, alert domain.Alert, contacts []domain.Contact) (*Dispatch, error) {
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	for i, c := range contacts {
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("%w: contact %d has no id", domain.ErrInvalidAlert, i)
		}
	}

	alert = o.prepare(alert)
	if err := o.createAlert(ctx, alert); err != nil {
		return nil, err
	}
	o.metrics.AlertsCreated.WithLabelValues(string(alert.Severity)).Inc()

	targets := ResolveChannels(contacts, alert, o.voice)
	if len(targets) == 0 {
		o.logger.Warn("alert has no eligible contacts",
			"alert_id", alert.ID, "asset_id", alert.AssetID, "event_id", alert.EventID)
		return newDispatch(Summary{
			AlertID: alert.ID,
			Status:  domain.AlertPending,
			LogIDs:  []string{},
			Warning: WarningNoContacts,
		}, 0), nil
	}

	logs := make([]domain.DeliveryLog, 0, len(targets))
	for _, t := range targets {
		log := domain.DeliveryLog{
			ID:          o.newID(),
			AlertID:     alert.ID,
			ContactID:   t.Contact.ID,
			Channel:     t.Channel,
			Destination: t.Destination,
			Status:      domain.DeliveryPending,
		}
		if err := o.store.CreateDeliveryLog(ctx, log); err != nil {
			o.abandon(ctx, alert, logs, err)
			return nil, fmt.Errorf("%w: create delivery log: %w", ErrPersistence, err)
		}
		logs = append(logs, log)
	}

	summary := Summary{
		AlertID:        alert.ID,
		Status:         domain.AlertSent,
		RecipientCount: recipientCount(targets),
		DeliveryCount:  len(logs),
		LogIDs:         make([]string, 0, len(logs)),
	}
	for _, l := range logs {
		summary.LogIDs = append(summary.LogIDs, l.ID)
	}

	d := newDispatch(summary, len(logs))
	detached := context.WithoutCancel(ctx)
	for i, log := range logs {
		msg := newMessage(alert, log, targets[i].Contact)
		o.spawn(detached, d, log, msg)
	}

	if err := o.store.UpdateAlertStatus(ctx, alert.ID, domain.AlertSent, o.clock.Now()); err != nil {
		d.Summary.Status = domain.AlertPending
		return d, fmt.Errorf("%w: mark alert sent: %w", ErrPersistence, err)
	}

	o.logger.Info("alert dispatched",
		"alert_id", alert.ID,
		"asset_id", alert.AssetID,
		"event_id", alert.EventID,
		"severity", alert.Severity,
		"recipients", summary.RecipientCount,
		"deliveries", summary.DeliveryCount,
	)
	return d, nil
}

// abandon releases an alert whose fan-out could not be recorded: logs already
// written are failed and the alert is expired so a redispatch can replace it.
func (o *Orchestrator) abandon(ctx context.Context, alert domain.Alert, logs []domain.DeliveryLog, cause error) {
	ctx = context.WithoutCancel(ctx)
	now := o.clock.Now()
	reason := "dispatch aborted: " + cause.Error()

	for _, log := range logs {
		log.Status = domain.DeliveryFailed
		log.ErrorMessage = &reason
		if err := o.store.UpdateDeliveryLog(ctx, log); err != nil {
			o.logger.Error("fail abandoned delivery log", "alert_id", alert.ID, "log_id", log.ID, "error", err)
		}
	}
	if err := o.store.UpdateAlertStatus(ctx, alert.ID, domain.AlertExpired, now); err != nil {
		o.logger.Error("release abandoned alert", "alert_id", alert.ID, "error", err)
		return
	}
	o.logger.Warn("alert abandoned before fan-out",
		"alert_id", alert.ID, "asset_id", alert.AssetID, "event_id", alert.EventID,
		"logs_written", len(logs), "error", cause)
}

func (o *Orchestrator) prepare(alert domain.Alert) domain.Alert {
	now := o.clock.Now()
	if alert.ID == "" {
		alert.ID = o.newID()
	}
	if alert.EventType == "" {
		alert.EventType = domain.EventTypeTsunami
	}
	if alert.Recommendation == "" {
		alert.Recommendation = domain.ThreatRecommendation(alert.Severity)
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	if alert.ExpiresAt.IsZero() {
		alert.ExpiresAt = alert.CreatedAt.Add(o.alertTTL)
	}
	alert.Status = domain.AlertPending
	alert.UpdatedAt = now
	return alert
}

// createAlert inserts the alert. A conflicting record that has already passed
// its expiry is expired and the insert retried once.
func (o *Orchestrator) createAlert(ctx context.Context, alert domain.Alert) error {
	err := o.store.CreateAlert(ctx, alert)

	var conflict *domain.ConflictError
	if errors.As(err, &conflict) && conflict.Existing.ExpiredAt(o.clock.Now()) {
		existing := conflict.Existing
		if uerr := o.store.UpdateAlertStatus(ctx, existing.ID, domain.AlertExpired, o.clock.Now()); uerr != nil {
			return fmt.Errorf("%w: expire alert %s: %w", ErrPersistence, existing.ID, uerr)
		}
		o.metrics.AlertsExpired.Inc()
		o.logger.Info("expired stale alert", "alert_id", existing.ID, "expires_at", existing.ExpiresAt)
		err = o.store.CreateAlert(ctx, alert)
	}

	switch {
	case err == nil:
		return nil
	case errors.As(err, &conflict):
		o.metrics.AlertConflicts.Inc()
		o.logger.Info("active alert already exists",
			"existing_id", conflict.Existing.ID, "asset_id", alert.AssetID, "event_id", alert.EventID)
		return conflict
	default:
		return fmt.Errorf("%w: create alert: %w", ErrPersistence, err)
	}
}

func (o *Orchestrator) spawn(ctx context.Context, d *Dispatch, log domain.DeliveryLog, msg Message) {
	o.inflight.Add(1)
	o.metrics.DeliveriesStarted.WithLabelValues(string(log.Channel)).Inc()
	o.metrics.SendsInFlight.Inc()
	go o.deliver(ctx, d, log, msg)
}

// deliver runs one send and records its result. It never panics.
func (o *Orchestrator) deliver(ctx context.Context, d *Dispatch, log domain.DeliveryLog, msg Message) {
	c := Completion{AlertID: log.AlertID, LogID: log.ID, ContactID: log.ContactID, Channel: log.Channel, Status: domain.DeliveryFailed}
	defer func() {
		if r := recover(); r != nil {
			c.Status = domain.DeliveryFailed
			c.Err = fmt.Errorf("delivery panic: %v", r)
			o.logger.Error("delivery panicked", "log_id", log.ID, "channel", log.Channel, "panic", r)
		}
		o.metrics.SendsInFlight.Dec()
		d.record(c)
		if o.onComplete != nil {
			o.onComplete(c)
		}
		o.inflight.Done()
	}()

	start := o.clock.Now()
	res, err := o.send(ctx, log.Channel, msg)
	finished := o.clock.Now()
	o.metrics.SendDuration.WithLabelValues(string(log.Channel)).Observe(finished.Sub(start).Seconds())

	log.Attempts = 1
	log.LastAttemptAt = &finished
	switch {
	case err != nil:
		errMsg := err.Error()
		log.Status = domain.DeliveryFailed
		log.ErrorMessage = &errMsg
		c.Err = err
		o.logger.Warn("delivery failed",
			"alert_id", log.AlertID, "log_id", log.ID, "channel", log.Channel, "error", err)
	case res.Delivered:
		log.Status = domain.DeliveryDelivered
		log.DeliveredAt = &finished
		log.ProviderMessageID = res.MessageID
	default:
		log.Status = domain.DeliverySent
		log.ProviderMessageID = res.MessageID
	}
	c.Status = log.Status
	o.metrics.DeliveryOutcomes.WithLabelValues(string(log.Channel), string(log.Status)).Inc()

	updateCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
	defer cancel()
	if uerr := o.store.UpdateDeliveryLog(updateCtx, log); uerr != nil {
		o.logger.Error("update delivery log failed", "log_id", log.ID, "error", uerr)
	}
}

// send calls the channel sender under the per-send timeout, turning a
// sender panic into an error.
func (o *Orchestrator) send(ctx context.Context, ch domain.Channel, msg Message) (res SendResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.sendTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			o.metrics.DeliveryOutcomes.WithLabelValues(string(ch), "panic").Inc()
			err = fmt.Errorf("%s sender panic: %v", ch, r)
		}
	}()
	return o.senders[ch].Send(ctx, msg)
}

// Alert returns an alert with its delivery logs, expiring it first when it
// is active and past its expiry time.
func (o *Orchestrator) Alert(ctx context.Context, id string) (domain.Alert, []domain.DeliveryLog, error) {
	alert, err := o.store.GetAlert(ctx, id)
	if err != nil {
		return domain.Alert{}, nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	if now := o.clock.Now(); alert.ExpiredAt(now) {
		if err := o.store.UpdateAlertStatus(ctx, id, domain.AlertExpired, now); err != nil {
			return domain.Alert{}, nil, fmt.Errorf("%w: expire alert %s: %w", ErrPersistence, id, err)
		}
		o.metrics.AlertsExpired.Inc()
		alert.Status = domain.AlertExpired
		alert.UpdatedAt = now
	}
	logs, err := o.store.ListDeliveryLogs(ctx, id)
	if err != nil {
		return domain.Alert{}, nil, fmt.Errorf("list delivery logs %s: %w", id, err)
	}
	return alert, logs, nil
}

// Acknowledge moves an active alert to acknowledged.
func (o *Orchestrator) Acknowledge(ctx context.Context, id string) error {
	alert, _, err := o.Alert(ctx, id)
	if err != nil {
		return err
	}
	if !alert.Status.Active() {
		return fmt.Errorf("%w: alert %s is %s", domain.ErrInvalidAlert, id, alert.Status)
	}
	if err := o.store.UpdateAlertStatus(ctx, id, domain.AlertAcknowledged, o.clock.Now()); err != nil {
		return fmt.Errorf("%w: acknowledge alert %s: %w", ErrPersistence, id, err)
	}
	return nil
}

// Shutdown waits for in-flight sends to finish or ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain deliveries: %w", ctx.Err())
	}
}
