// ABOUTME: Session-local behaviors layered on an online session
// ABOUTME: Scripted chat lines and randomized anti-idle actions, cancelled on stop

package session

import "time"

func (c *Controller) startBehaviorsLocked(ls *live) {
	if ls.cfg.ChatEnabled && len(ls.cfg.ChatLines) > 0 && ls.cfg.ChatDelay > 0 {
		c.scheduleChatLocked(ls)
	}
	if ls.cfg.AntiIdle {
		c.scheduleAntiIdleLocked(ls)
	}
}

func (c *Controller) scheduleChatLocked(ls *live) {
	ls.timers[timerChat] = c.clock.AfterFunc(ls.cfg.ChatDelay, func() { c.runChat(ls) })
}

// runChat sends the next scripted line. With repeat on, lines are drawn at
// random forever; otherwise each line is sent once in order.
func (c *Controller) runChat(ls *live) {
	c.mu.Lock()
	if c.current != ls || ls.info.Status != StatusOnline {
		c.mu.Unlock()
		return
	}
	lines := ls.cfg.ChatLines
	var line string
	if ls.cfg.ChatRepeat {
		line = lines[c.rng.IntN(len(lines))]
		c.scheduleChatLocked(ls)
	} else {
		line = lines[ls.chatNext]
		ls.chatNext++
		if ls.chatNext < len(lines) {
			c.scheduleChatLocked(ls)
		} else {
			delete(ls.timers, timerChat)
		}
	}
	client := ls.client
	identity := ls.info.Identity
	c.mu.Unlock()

	if err := client.Chat(line); err != nil {
		c.logger.Warn("scripted chat failed", "identity", identity, "error", err)
	}
}

func (c *Controller) antiIdleInterval() time.Duration {
	span := int64(c.settings.AntiIdleMax - c.settings.AntiIdleMin)
	if span <= 0 {
		return c.settings.AntiIdleMin
	}
	return c.settings.AntiIdleMin + time.Duration(c.rng.Int64N(span+1))
}

func (c *Controller) scheduleAntiIdleLocked(ls *live) {
	ls.timers[timerAntiIdle] = c.clock.AfterFunc(c.antiIdleInterval(), func() { c.runAntiIdle(ls) })
}

// runAntiIdle performs one random idle action: toggle sneaking or jump once.
func (c *Controller) runAntiIdle(ls *live) {
	c.mu.Lock()
	if c.current != ls || ls.info.Status != StatusOnline {
		c.mu.Unlock()
		return
	}
	jump := c.rng.IntN(2) == 0
	if !jump {
		ls.sneaking = !ls.sneaking
	}
	sneaking := ls.sneaking
	client := ls.client
	identity := ls.info.Identity
	c.scheduleAntiIdleLocked(ls)
	c.mu.Unlock()

	var err error
	if jump {
		if err = client.SetState("jump", true); err == nil {
			err = client.SetState("jump", false)
		}
	} else {
		err = client.SetState("sneak", sneaking)
	}
	if err != nil {
		c.logger.Debug("anti-idle action failed", "identity", identity, "error", err)
	}
}
