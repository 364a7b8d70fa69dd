package mqtt

import "time"

// StartHeartbeat begins publishing status and stats every interval.
// A non-positive interval defaults to 5s.
func (b *Bridge) StartHeartbeat(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	b.mu.Lock()
	if b.stopCh != nil {
		b.mu.Unlock()
		return
	}
	b.stopCh = make(chan struct{})
	stop := b.stopCh
	b.mu.Unlock()

	b.wg.Add(1)
	go b.heartbeatLoop(interval, stop)
}

// Stop stops the heartbeat loop. It is safe to call when none is running.
func (b *Bridge) Stop() {
	b.mu.Lock()
	stop := b.stopCh
	b.stopCh = nil
	b.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	b.wg.Wait()
}

func (b *Bridge) heartbeatLoop(interval time.Duration, stop <-chan struct{}) {
	defer b.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			b.Heartbeat(now)
		}
	}
}

// Heartbeat publishes one telemetry message.
func (b *Bridge) Heartbeat(now time.Time) {
	b.publish(b.topics.Heartbeat, false, HeartbeatMessage{
		Timestamp: now.UTC(),
		Status:    b.ctrl.Status(),
		Stats:     b.ctrl.Stats(),
	})
}
