package pricesync

// Subscribe returns a channel that receives the current state immediately
// and the latest state after every change. Slow readers only ever see the
// newest snapshot; the controller never blocks on them. The channel is
// closed by cancel or when the controller stops. Subscribing to a stopped
// controller yields the final state on an already closed channel.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	if c.subsClosed {
		ch <- c.snapshotLocked()
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publishLocked hands st to every subscriber, replacing an unread value.
// Only holders of c.mu send, so the buffered slot is always free after the
// drain.
func (c *Controller) publishLocked(st State) {
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func (c *Controller) closeSubscribers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subsClosed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
