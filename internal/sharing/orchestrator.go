// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Package sharing implements the location sharing orchestrator: the
// capture -> persist-local -> persist-remote -> notify pipeline, and the
// reconciliation pass that drains the pending-share queue.
//
// The pipeline degrades instead of failing. Only a capture failure is
// terminal; every later stage turns its failure into queued local state that
// reconciliation retries, and the user always gets an outcome message.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/educonnect/beacon/internal/cache"
	"github.com/educonnect/beacon/internal/delivery"
	"github.com/educonnect/beacon/internal/geo"
	"github.com/educonnect/beacon/internal/logging"
	"github.com/educonnect/beacon/internal/metrics"
	"github.com/educonnect/beacon/internal/models"
	"github.com/educonnect/beacon/internal/monitor"
	"github.com/educonnect/beacon/internal/notify"
	"github.com/educonnect/beacon/internal/remote"
)

// errDeliveryFailed marks a send whose failure is captured in the Result.
// It exists so the circuit breaker counts transient delivery failures.
var errDeliveryFailed = errors.New("delivery failed")

// Config tunes the orchestrator.
type Config struct {
	// SenderName is the student display name shown in notifications.
	SenderName string

	// SendsPerSecond paces reconciliation deliveries.
	SendsPerSecond float64

	// BreakerThreshold is the consecutive-failure count that opens the
	// delivery circuit. Zero means 5.
	BreakerThreshold uint32

	// BreakerCooldown is how long the circuit stays open. Zero means 60s.
	BreakerCooldown time.Duration
}

// Orchestrator drives the share pipeline end to end.
type Orchestrator struct {
	cfg        Config
	cache      *cache.Manager
	writer     remote.LocationWriter
	channel    delivery.Channel
	source     geo.Source
	monitor    *monitor.Monitor
	sink       notify.Sink
	recipients []models.Recipient
	breaker    *gobreaker.CircuitBreaker[*delivery.Result]
	limiter    *rate.Limiter
	log        zerolog.Logger

	// inFlight guards reconciliation: at most one pass runs at a time.
	inFlight atomic.Bool
}

// New creates an orchestrator.
func New(
	cfg Config,
	cacheMgr *cache.Manager,
	writer remote.LocationWriter,
	channel delivery.Channel,
	source geo.Source,
	mon *monitor.Monitor,
	sink notify.Sink,
	recipients []models.Recipient,
) *Orchestrator {
	if cfg.SendsPerSecond <= 0 {
		cfg.SendsPerSecond = 2
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = time.Minute
	}

	o := &Orchestrator{
		cfg:        cfg,
		cache:      cacheMgr,
		writer:     writer,
		channel:    channel,
		source:     source,
		monitor:    mon,
		sink:       sink,
		recipients: recipients,
		limiter:    rate.NewLimiter(rate.Limit(cfg.SendsPerSecond), 1),
		log:        logging.With().Str("component", "sharing").Logger(),
	}

	o.breaker = gobreaker.NewCircuitBreaker[*delivery.Result](gobreaker.Settings{
		Name:    "delivery",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			o.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Delivery circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues("delivery").Set(breakerStateValue(gobreaker.StateClosed))

	return o
}

// breakerStateValue maps a breaker state onto the exported gauge scale.
func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// ShareCurrentLocation runs the full pipeline once against the configured
// default guardians.
func (o *Orchestrator) ShareCurrentLocation(ctx context.Context) (*models.ShareSummary, error) {
	return o.ShareCurrentLocationWith(ctx, o.recipients)
}

// ShareCurrentLocationWith runs the full pipeline once: capture the current
// position, cache it, push it to the remote database, then notify every
// recipient in order.
//
// Only capture can fail the call. A remote persistence failure leaves the
// location pending sync; a notification failure queues that recipient's share
// for reconciliation. With zero recipients the location is still captured and
// persisted and the call reports success: capture and sharing are
// independently useful. The summary reflects what actually happened, and the
// same message is pushed through the notify sink.
func (o *Orchestrator) ShareCurrentLocationWith(ctx context.Context, recipients []models.Recipient) (*models.ShareSummary, error) {
	pos, err := o.source.Current(ctx, geo.DefaultOptions())
	if err != nil {
		o.monitor.RecordEvent(models.ServiceLocation, models.SeverityError,
			"Location capture failed", &models.EventDetail{
				Location: &models.LocationDetail{Error: err.Error()},
			})
		o.sink.Notify(false, "Location not shared", "Your current position could not be determined.")
		return nil, fmt.Errorf("capture position: %w", err)
	}

	loc := models.CapturedLocation{
		Latitude:            pos.Latitude,
		Longitude:           pos.Longitude,
		CapturedAt:          pos.FixedAt,
		SharedWithGuardians: len(recipients) > 0,
	}
	o.cache.CacheLocation(&loc)

	summary := &models.ShareSummary{
		LocalID:    loc.LocalID,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		CapturedAt: loc.CapturedAt,
	}

	serverID, err := o.writer.InsertLocation(ctx, loc.Latitude, loc.Longitude, loc.SharedWithGuardians)
	if err != nil {
		o.monitor.RecordEvent(models.ServiceDatabase, models.SeverityWarning,
			"Remote location persist failed, entry kept pending sync", &models.EventDetail{
				Database: &models.DatabaseDetail{Operation: "insert_location", Error: err.Error()},
			})
	} else {
		o.cache.MarkLocationSynced(loc.LocalID, serverID)
		summary.Synced = true
	}

	for _, recipient := range recipients {
		outcome := o.notifyRecipient(ctx, recipient, loc.Latitude, loc.Longitude)
		summary.Outcomes = append(summary.Outcomes, outcome)
		switch outcome.State {
		case models.ShareDelivered:
			summary.Delivered++
		case models.ShareQueued:
			summary.Queued++
		}
	}

	o.sink.Notify(summary.Queued == 0, summaryTitle(summary), summaryDetail(summary))
	o.log.Info().
		Str("local_id", summary.LocalID).
		Int("delivered", summary.Delivered).
		Int("queued", summary.Queued).
		Bool("synced", summary.Synced).
		Msg("Share completed")
	return summary, nil
}

// notifyRecipient attempts one delivery and queues the share on failure.
// Queueing is the success path of the failure branch: the recipient will get
// the location, just later.
func (o *Orchestrator) notifyRecipient(ctx context.Context, recipient models.Recipient, latitude, longitude float64) models.RecipientOutcome {
	result := o.sendThroughBreaker(ctx, &delivery.SendParams{
		RecipientAddress: recipient.Address,
		RecipientLabel:   recipient.Label,
		Latitude:         latitude,
		Longitude:        longitude,
		SenderName:       o.cfg.SenderName,
	})

	if result.Success {
		metrics.SharesTotal.WithLabelValues(string(models.ShareDelivered)).Inc()
		return models.RecipientOutcome{
			Recipient: recipient,
			State:     models.ShareDelivered,
		}
	}

	shareID := o.cache.AddPendingShare(recipient.Address, recipient.Label, latitude, longitude)
	metrics.SharesTotal.WithLabelValues(string(models.ShareQueued)).Inc()

	severity := models.SeverityWarning
	if result.ErrorCode == delivery.ErrorCodeInvalidKey {
		severity = models.SeverityError
	}
	o.monitor.RecordEvent(models.ServiceDelivery, severity,
		"Notification delivery failed, share stored for later", &models.EventDetail{
			Delivery: &models.DeliveryDetail{
				Recipient:  recipient.Address,
				ShareID:    shareID,
				StatusCode: result.StatusCode,
				ErrorCode:  result.ErrorCode,
				Error:      result.Message,
			},
		})

	return models.RecipientOutcome{
		Recipient: recipient,
		State:     models.ShareQueued,
		ShareID:   shareID,
		Message:   result.Message,
	}
}

// sendThroughBreaker routes one send through the delivery circuit breaker.
// Transient failures count against the circuit; validation failures do not.
// The return is always a usable Result.
func (o *Orchestrator) sendThroughBreaker(ctx context.Context, params *delivery.SendParams) *delivery.Result {
	result, err := o.breaker.Execute(func() (*delivery.Result, error) {
		r, sendErr := o.channel.Send(ctx, params)
		if sendErr != nil {
			return nil, sendErr
		}
		if !r.Success && r.IsTransient {
			return r, errDeliveryFailed
		}
		return r, nil
	})

	switch {
	case err == nil && result.Success:
		metrics.DeliveryRequests.WithLabelValues("success").Inc()
		return result
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.DeliveryRequests.WithLabelValues("rejected").Inc()
		return &delivery.Result{
			Message:     "delivery paused after repeated failures",
			ErrorCode:   delivery.ErrorCodeConnectionFailed,
			IsTransient: true,
		}
	case result != nil:
		metrics.DeliveryRequests.WithLabelValues("failure").Inc()
		return result
	default:
		metrics.DeliveryRequests.WithLabelValues("failure").Inc()
		return &delivery.Result{
			Message:   err.Error(),
			ErrorCode: delivery.ErrorCodeUnknown,
		}
	}
}

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	// Skipped is true when another pass was already in flight.
	Skipped bool `json:"skipped"`

	// Delivered is the number of pending shares delivered this pass.
	Delivered int `json:"delivered"`

	// Remaining is the queue depth after the pass.
	Remaining int `json:"remaining"`

	// LocationsSynced is the number of pending locations pushed remote.
	LocationsSynced int `json:"locations_synced"`
}

// ProcessPendingShares runs one reconciliation pass: re-push locations still
// pending remote sync (best effort), then drain the pending-share queue.
//
// At most one pass runs at a time; an overlapping call returns immediately
// with Skipped set. The last-sync timestamp is updated whenever a pass runs
// to completion, even if every delivery attempt failed, because the pass
// itself is what the staleness rule measures.
func (o *Orchestrator) ProcessPendingShares(ctx context.Context) ReconcileResult {
	if !o.inFlight.CompareAndSwap(false, true) {
		metrics.ReconcilePasses.WithLabelValues("skipped_in_flight").Inc()
		o.log.Debug().Msg("Reconciliation already in flight, skipping")
		return ReconcileResult{Skipped: true}
	}
	defer o.inFlight.Store(false)

	start := time.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
		metrics.ReconcilePasses.WithLabelValues("completed").Inc()
	}()
	defer o.cache.UpdateLastSync()

	result := ReconcileResult{}
	result.LocationsSynced = o.resyncPendingLocations(ctx)

	pending := o.cache.PendingShares()
	for i := range pending {
		share := pending[i]
		if err := o.limiter.Wait(ctx); err != nil {
			result.Remaining = len(pending) - i
			return result
		}

		sendResult := o.sendThroughBreaker(ctx, &delivery.SendParams{
			RecipientAddress: share.RecipientAddress,
			RecipientLabel:   share.RecipientLabel,
			Latitude:         share.Latitude,
			Longitude:        share.Longitude,
			SenderName:       o.cfg.SenderName,
		})

		if sendResult.Success {
			o.cache.RemovePendingShare(share.ID)
			metrics.PendingShareAttempts.Observe(float64(share.AttemptCount + 1))
			metrics.SharesTotal.WithLabelValues(string(models.ShareDelivered)).Inc()
			result.Delivered++
			o.log.Info().
				Str("share_id", share.ID).
				Str("recipient", share.RecipientAddress).
				Int("attempts", share.AttemptCount+1).
				Msg("Pending share delivered")
			continue
		}

		o.cache.IncrementShareAttempt(share.ID)
		o.monitor.RecordEvent(models.ServiceDelivery, models.SeverityWarning,
			"Pending share retry failed, kept in queue", &models.EventDetail{
				Delivery: &models.DeliveryDetail{
					Recipient:  share.RecipientAddress,
					ShareID:    share.ID,
					StatusCode: sendResult.StatusCode,
					ErrorCode:  sendResult.ErrorCode,
					Error:      sendResult.Message,
				},
			})
		// An open circuit means the channel is down; no point walking the
		// rest of the queue this pass.
		if o.breaker.State() == gobreaker.StateOpen {
			break
		}
	}

	result.Remaining = len(o.cache.PendingShares())
	if result.Delivered > 0 || result.LocationsSynced > 0 {
		o.log.Info().
			Int("delivered", result.Delivered).
			Int("remaining", result.Remaining).
			Int("locations_synced", result.LocationsSynced).
			Msg("Reconciliation pass completed")
	}
	return result
}

// resyncPendingLocations pushes cached locations still pending remote sync.
// Best effort: the first failure stops the walk so an offline backend does
// not burn a request per entry.
func (o *Orchestrator) resyncPendingLocations(ctx context.Context) int {
	synced := 0
	for _, loc := range o.cache.Locations() {
		if !loc.PendingSync {
			continue
		}
		serverID, err := o.writer.InsertLocation(ctx, loc.Latitude, loc.Longitude, loc.SharedWithGuardians)
		if err != nil {
			o.log.Debug().Err(err).Str("local_id", loc.LocalID).Msg("Location re-sync failed, will retry next pass")
			break
		}
		o.cache.MarkLocationSynced(loc.LocalID, serverID)
		synced++
	}
	return synced
}

// HasPendingWork reports whether reconciliation has anything to do.
func (o *Orchestrator) HasPendingWork() bool {
	return len(o.cache.PendingShares()) > 0 || o.cache.HasPendingLocations()
}

// summaryTitle builds the user-facing headline for a share outcome.
func summaryTitle(s *models.ShareSummary) string {
	if len(s.Outcomes) == 0 {
		return "Location saved"
	}
	if s.Queued == 0 {
		return "Location shared"
	}
	if s.Delivered == 0 {
		return "Location saved"
	}
	return "Location partially shared"
}

// summaryDetail builds the user-facing explanation for a share outcome.
func summaryDetail(s *models.ShareSummary) string {
	switch {
	case len(s.Outcomes) == 0:
		return "Your location was captured and saved. No guardians are configured to notify."
	case s.Queued == 0:
		return fmt.Sprintf("Your location was shared with %d guardian(s).", s.Delivered)
	case s.Delivered == 0:
		return fmt.Sprintf("Your location was saved and will be sent to %d guardian(s) when the connection recovers.", s.Queued)
	default:
		return fmt.Sprintf("Shared with %d guardian(s); %d notification(s) stored for later delivery.", s.Delivered, s.Queued)
	}
}
