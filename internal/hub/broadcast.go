package hub

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// broadcastAttention fans notifyAttentionRequired out to every connection
// decisions marks true, bounded to a handful of concurrent sends so one slow
// connection's full send queue can't stall the others (spec §4.4 fan-out &
// back-pressure: per-connection delivery must stay independent).
func (h *Hub) broadcastAttention(conns []*connection, decisions map[string]bool, agentID string) {
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(8)
	for _, c := range conns {
		if !decisions[c.id] {
			continue
		}
		c := c
		g.Go(func() error {
			c.notifyAttentionRequired(agentID)
			if h.metrics != nil {
				h.metrics.AttentionPushes.WithLabelValues("default").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()
}
