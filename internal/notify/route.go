package notify

import (
	"breakbot/internal/config"
	"breakbot/internal/engine"
	"breakbot/internal/transport"
)

// Route maps an engine notice to the forum topic it belongs in.
// Admin-pool notices go to the dedicated admin thread, everything else to
// the pool's break or reservation thread. Reports false when the community
// has no thread configured for that pool.
func Route(cc config.CommunityConfig, n engine.Notification) (transport.Notification, bool) {
	target := transport.ChatTarget{ChatID: cc.ChatID}

	if n.Pool == engine.AdminPool {
		if cc.AdminBreakThreadID == 0 {
			return transport.Notification{}, false
		}
		target.ThreadID = cc.AdminBreakThreadID
		return transport.Notification{Target: target, Text: n.Text}, true
	}

	pc, ok := cc.Pools[n.Pool]
	if !ok {
		return transport.Notification{}, false
	}
	switch n.Kind {
	case engine.ChanRez:
		target.ThreadID = pc.RezThreadID
	default:
		target.ThreadID = pc.BreakThreadID
	}
	return transport.Notification{Target: target, Text: n.Text}, true
}
