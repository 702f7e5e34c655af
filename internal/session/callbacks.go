// ABOUTME: Protocol callback handlers and the auto-reconnect policy
// ABOUTME: Handlers ignore events from sessions that are no longer current

package session

import (
	"context"
	"time"

	"github.com/2389/standin/internal/dedupe"
	"github.com/2389/standin/internal/events"
	"github.com/2389/standin/internal/store"
)

type reconnectPlan struct {
	scheduled bool
	attempt   int
	delay     time.Duration
}

func (c *Controller) handleSpawn(ls *live) {
	c.mu.Lock()
	if c.current != ls || ls.info.Status != StatusConnecting {
		c.mu.Unlock()
		return
	}
	ls.info.Status = StatusOnline
	ls.attempts = 0
	c.scheduleHeartbeatLocked(ls)
	c.startBehaviorsLocked(ls)
	cfg := ls.cfg
	client := ls.client
	target := ls.target()
	sessionID := ls.info.ID
	c.mu.Unlock()

	c.monitor.RecordHeartbeat()

	ctx := context.Background()
	now := c.clock.Now()
	c.updateStats(ctx, store.StatsPatch{
		Status:          store.Ptr(store.StatusOnline),
		CurrentServerID: store.Ptr(target.ServerID),
		LastConnected:   &now,
	})
	c.recorder.Publish(events.StatusChanged{SessionTarget: target, Status: string(StatusOnline)})
	c.recorder.Record(ctx, events.SessionConnected{SessionTarget: target, SessionID: sessionID})
	c.logger.Info("session online", "identity", target.Identity, "server", target.ServerName)

	if cfg.AutoAuth && cfg.AutoAuthPassword != "" {
		if err := client.Chat("/login " + cfg.AutoAuthPassword); err != nil {
			c.logger.Warn("auto-auth failed", "identity", target.Identity, "error", err)
		}
	}
}

func (c *Controller) handleChat(ls *live, e Event) {
	c.mu.Lock()
	if c.current != ls || ls.info.Status != StatusOnline {
		c.mu.Unlock()
		return
	}
	identity := ls.info.Identity
	serverID := ls.info.ServerID
	c.mu.Unlock()

	if e.Username == identity {
		return
	}
	if c.dedupe.CheckAndMark(dedupe.ChatKey(e.Username, e.Message)) {
		c.logger.Debug("dropped re-delivered chat line", "username", e.Username)
		return
	}

	c.monitor.RecordHeartbeat()

	ctx := context.Background()
	now := c.clock.Now()
	entry := &store.ChatLog{
		Username:    e.Username,
		Message:     e.Message,
		MessageType: store.MessageTypeChat,
		ServerID:    &serverID,
		CreatedAt:   now,
	}
	if err := c.store.AddChatLog(ctx, entry); err != nil {
		c.logger.Warn("failed to persist chat log", "error", err)
	}
	c.updateStats(ctx, store.StatsPatch{AddChatMessages: 1})
	c.recorder.Publish(events.ChatMessage{
		ServerID:  serverID,
		Username:  e.Username,
		Message:   e.Message,
		Timestamp: now,
	})
}

func (c *Controller) handleError(ls *live, e Event) {
	c.mu.Lock()
	if c.current != ls {
		c.mu.Unlock()
		return
	}
	target := ls.target()
	sessionID := ls.info.ID
	c.mu.Unlock()

	msg := "unknown error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	c.logger.Warn("protocol error", "identity", target.Identity, "error", msg)
	c.recorder.Record(context.Background(), events.SessionError{SessionTarget: target, SessionID: sessionID, Error: msg})
}

func (c *Controller) handleKicked(ls *live, e Event) {
	c.mu.Lock()
	if c.current != ls || ls.info.Status == StatusEnded {
		c.mu.Unlock()
		return
	}
	ls.info.Status = StatusKicked
	c.cancelTimersLocked(ls)
	target := ls.target()
	sessionID := ls.info.ID
	c.mu.Unlock()

	ctx := context.Background()
	c.updateStats(ctx, store.StatsPatch{Status: store.Ptr(store.StatusKicked)})
	c.recorder.Publish(events.StatusChanged{SessionTarget: target, Status: string(StatusKicked)})
	c.recorder.Record(ctx, events.SessionKicked{SessionTarget: target, SessionID: sessionID, Reason: e.Reason})
	c.logger.Warn("session kicked", "identity", target.Identity, "reason", e.Reason)
}

func (c *Controller) handleEnd(ls *live, _ Event) {
	c.mu.Lock()
	if c.current != ls || ls.info.Status == StatusEnded {
		c.mu.Unlock()
		return
	}
	c.cancelTimersLocked(ls)
	plan := c.afterLossLocked(ls)
	target := ls.target()
	sessionID := ls.info.ID
	c.mu.Unlock()

	ctx := context.Background()
	now := c.clock.Now()
	c.updateStats(ctx, store.StatsPatch{
		Status:           store.Ptr(store.StatusOffline),
		LastDisconnected: &now,
	})
	c.recorder.Publish(events.StatusChanged{SessionTarget: target, Status: string(StatusOffline)})
	c.recorder.Record(ctx, events.SessionDisconnected{SessionTarget: target, SessionID: sessionID})
	c.announceReconnect(ctx, ls, plan)
}

// afterLossLocked applies the reconnect policy to a session that went down.
// It either schedules a reconnect, leaving the session current but offline,
// or ends the session.
func (c *Controller) afterLossLocked(ls *live) reconnectPlan {
	if ls.info.Status.Live() {
		ls.info.Status = StatusOffline
	}
	if !ls.cfg.AutoReconnect || c.governed() || ls.attempts >= c.settings.ReconnectMaxAttempts {
		c.endLocked(ls)
		c.current = nil
		return reconnectPlan{}
	}

	delay := c.settings.ReconnectDelay
	ls.timers[timerReconnect] = c.clock.AfterFunc(delay, func() { c.reconnect(ls) })
	return reconnectPlan{scheduled: true, attempt: ls.attempts + 1, delay: delay}
}

func (c *Controller) announceReconnect(ctx context.Context, ls *live, plan reconnectPlan) {
	if !plan.scheduled {
		return
	}
	c.logger.Info("reconnect scheduled",
		"identity", ls.info.Identity,
		"attempt", plan.attempt,
		"delay", plan.delay)
	c.recorder.Record(ctx, events.SessionReconnecting{
		SessionTarget: ls.target(),
		Attempt:       plan.attempt,
		DelayMS:       plan.delay.Milliseconds(),
	})
}

// reconnect replaces an offline session with a fresh one under the same identity.
func (c *Controller) reconnect(ls *live) {
	ctx := context.Background()
	cfg, server, err := c.loadTargets(ctx)

	c.mu.Lock()
	if c.current != ls {
		c.mu.Unlock()
		return
	}
	delete(ls.timers, timerReconnect)
	if err != nil {
		c.endLocked(ls)
		c.current = nil
		c.mu.Unlock()
		c.logger.Error("reconnect abandoned", "identity", ls.info.Identity, "error", err)
		return
	}
	next := c.newLiveLocked(ls.info.Identity, cfg, server)
	next.attempts = ls.attempts + 1
	c.endLocked(ls)
	c.current = next
	c.mu.Unlock()

	c.updateStats(ctx, store.StatsPatch{AddReconnects: 1})
	if err := c.connect(ctx, next); err != nil {
		c.logger.Warn("reconnect attempt failed", "identity", next.info.Identity, "attempt", next.attempts, "error", err)
	}
}

func (c *Controller) scheduleHeartbeatLocked(ls *live) {
	ls.timers[timerHeartbeat] = c.clock.AfterFunc(c.settings.HeartbeatInterval, func() {
		c.mu.Lock()
		if c.current != ls || ls.info.Status != StatusOnline {
			c.mu.Unlock()
			return
		}
		c.scheduleHeartbeatLocked(ls)
		c.mu.Unlock()

		c.monitor.RecordHeartbeat()
	})
}
