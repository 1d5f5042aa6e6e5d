// Package router turns Telegram updates into engine operations.
//
// Each forum topic of a served group is bound to one pool and one command
// family (break or reservation) through configuration; the router resolves
// the topic, parses the slash command and hands the typed call to the
// engine. Replies go back to the same topic, engine notices are fanned out
// through the notify sink.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"breakbot/internal/config"
	"breakbot/internal/engine"
	"breakbot/internal/notify"
	"breakbot/internal/transport"
	logx "breakbot/pkg/logx"
)

const handlerTimeout = 20 * time.Second

// Thread kinds a topic can be bound to.
const (
	threadBreak = "break"
	threadRez   = "rez"
	threadAdmin = "admin"
)

type Router struct {
	cfgm    *config.Manager
	eng     *engine.Engine
	adapter transport.Adapter
	sink    *notify.Sink
	log     logx.Logger

	jobs chan func()
}

func New(cfgm *config.Manager, eng *engine.Engine, adapter transport.Adapter, sink *notify.Sink, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfgm:    cfgm,
		eng:     eng,
		adapter: adapter,
		sink:    sink,
		log:     log,
		jobs:    make(chan func(), 256),
	}
}

// Run consumes updates until ctx is cancelled or the channel closes.
// Handlers execute on a bounded worker pool so one slow community cannot
// stall the rest.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	r.log.Info("command router started", logx.Int("workers", workers))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-r.jobs:
					if !ok {
						return
					}
					job()
				}
			}
		}()
	}
	defer func() {
		close(r.jobs)
		wg.Wait()
		r.log.Info("command router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Message != nil {
				r.routeMessage(ctx, *up.Message)
			}
		}
	}
}

// request carries one resolved command invocation.
type request struct {
	msg       transport.Message
	community config.CommunityConfig
	pool      string // empty for the admin thread
	kind      string // threadBreak, threadRez or threadAdmin
	actor     engine.Actor

	command string
	pos     []string
	flags   map[string]string
	bools   map[string]bool
}

func (r *Router) routeMessage(ctx context.Context, msg transport.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	cfg := r.cfgm.Get()
	if cfg == nil {
		return
	}
	cc, pool, kind, ok := resolveThread(cfg, msg.ChatID, msg.ThreadID)
	if !ok {
		return
	}

	parts := tokenize(text)
	if len(parts) == 0 {
		return
	}
	pos, flags, bools := parseArgs(parts[1:])
	req := &request{
		msg:       msg,
		community: cc,
		pool:      pool,
		kind:      kind,
		actor: engine.Actor{
			UserID:      strconv.FormatInt(msg.FromID, 10),
			DisplayName: msg.DisplayName,
		},
		command: commandWord(parts[0]),
		pos:     pos,
		flags:   flags,
		bools:   bools,
	}

	select {
	case r.jobs <- func() { r.handle(ctx, req) }:
	default:
		r.reply(ctx, req, "Busy, try again in a moment.")
	}
}

// resolveThread maps a chat+topic to its community and pool binding.
// Messages from unconfigured chats or topics are ignored entirely.
func resolveThread(cfg *config.Config, chatID int64, threadID int) (config.CommunityConfig, string, string, bool) {
	for _, cc := range cfg.Communities {
		if cc.ChatID != chatID {
			continue
		}
		if cc.AdminBreakThreadID != 0 && threadID == cc.AdminBreakThreadID {
			return cc, "", threadAdmin, true
		}
		for pool, pc := range cc.Pools {
			switch threadID {
			case pc.BreakThreadID:
				return cc, pool, threadBreak, true
			case pc.RezThreadID:
				return cc, pool, threadRez, true
			}
		}
		return config.CommunityConfig{}, "", "", false
	}
	return config.CommunityConfig{}, "", "", false
}

func (r *Router) handle(ctx context.Context, req *request) {
	start := time.Now()
	log := r.log.With(
		logx.Int64("chat_id", req.msg.ChatID),
		logx.Int("thread_id", req.msg.ThreadID),
		logx.Int64("from_id", req.msg.FromID),
		logx.String("cmd", req.command),
	)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic in command handler",
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())))
			r.reply(ctx, req, "Something went wrong, try again.")
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	res, err := r.dispatch(hctx, req)
	if err != nil {
		log.Warn("command failed", logx.Err(err), logx.Duration("dur", time.Since(start)))
		r.reply(ctx, req, "Something went wrong, try again.")
		return
	}
	if res == nil {
		return
	}
	log.Info("command ok", logx.Duration("dur", time.Since(start)))

	if res.Reply != "" {
		text := res.Reply
		if res.Private {
			text = r.addressActor(req.msg) + text
		}
		r.reply(ctx, req, text)
	}
	r.deliverNotices(req.community, res.Notices)
}

// addressActor prefixes private replies with the actor's handle. Telegram
// group topics have no ephemeral messages, so addressed text is the closest
// equivalent.
func (r *Router) addressActor(msg transport.Message) string {
	if msg.FromUsername != "" {
		return "@" + msg.FromUsername + " "
	}
	name := msg.DisplayName
	if i := strings.IndexByte(name, '|'); i > 0 {
		name = strings.TrimSpace(name[:i])
	}
	if name == "" {
		return ""
	}
	return name + ", "
}

func (r *Router) reply(ctx context.Context, req *request, text string) {
	if text == "" {
		return
	}
	target := transport.ChatTarget{ChatID: req.msg.ChatID, ThreadID: req.msg.ThreadID}
	if _, err := r.adapter.SendText(ctx, target, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		r.log.Warn("reply send failed",
			logx.Int64("chat_id", target.ChatID),
			logx.Int("thread_id", target.ThreadID),
			logx.Err(err))
	}
}

func (r *Router) deliverNotices(cc config.CommunityConfig, notices []engine.Notification) {
	for _, n := range notices {
		out, ok := notify.Route(cc, n)
		if !ok {
			r.log.Warn("notice has no configured topic",
				logx.Int64("chat_id", cc.ChatID),
				logx.String("pool", n.Pool),
				logx.String("kind", n.Kind))
			continue
		}
		_ = r.sink.Push(out)
	}
}

func (r *Router) isAdmin(req *request) bool {
	for _, id := range req.community.AdminUserIDs {
		if id == req.msg.FromID {
			return true
		}
	}
	return false
}
