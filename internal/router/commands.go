package router

import (
	"context"
	"strconv"
	"strings"

	"breakbot/internal/engine"
)

func (r *Router) dispatch(ctx context.Context, req *request) (*engine.Result, error) {
	chatID := req.msg.ChatID
	switch req.command {
	case "reserve":
		if res := r.requireThread(req, threadRez); res != nil {
			return res, nil
		}
		if len(req.pos) < 2 {
			return usage("/reserve <10|20> <HH:MM> [--wait]"), nil
		}
		dur, ok := parseInt(req.pos[0])
		if !ok {
			return usage("/reserve <10|20> <HH:MM> [--wait]"), nil
		}
		return r.eng.CreateReservation(ctx, chatID, req.actor, req.pool, dur, req.pos[1], req.bools["wait"])

	case "cancel":
		if res := r.requireThread(req, threadRez); res != nil {
			return res, nil
		}
		return r.eng.CancelReservations(ctx, chatID, req.actor, req.pool, req.bools["all"], req.flags["at"])

	case "reservations":
		if res := r.requireThread(req, threadRez); res != nil {
			return res, nil
		}
		return r.eng.ListReservations(ctx, chatID, req.actor, req.pool)

	case "break":
		if res := r.requireThread(req, threadBreak); res != nil {
			return res, nil
		}
		if len(req.pos) < 1 {
			return usage("/break <10|20>"), nil
		}
		dur, ok := parseInt(req.pos[0])
		if !ok {
			return usage("/break <10|20>"), nil
		}
		return r.eng.StartBreak(ctx, chatID, req.actor, req.pool, dur)

	case "urgent":
		if res := r.requireThread(req, threadBreak); res != nil {
			return res, nil
		}
		if len(req.pos) < 1 {
			return usage("/urgent <10|20>"), nil
		}
		dur, ok := parseInt(req.pos[0])
		if !ok {
			return usage("/urgent <10|20>"), nil
		}
		return r.eng.StartEmergencyBreak(ctx, chatID, req.actor, req.pool, dur)

	case "extra":
		if res := r.requireThread(req, threadBreak); res != nil {
			return res, nil
		}
		if len(req.pos) < 1 {
			return usage("/extra <5|10|20>"), nil
		}
		dur, ok := parseInt(req.pos[0])
		if !ok {
			return usage("/extra <5|10|20>"), nil
		}
		return r.eng.StartExtraBreak(ctx, chatID, req.actor, req.pool, dur)

	case "resume":
		if res := r.requireThread(req, threadBreak); res != nil {
			return res, nil
		}
		return r.eng.EndBreak(ctx, chatID, req.actor, req.pool)

	case "rights":
		if req.kind == threadAdmin {
			return private("Use /rights in your pool's topics."), nil
		}
		return r.eng.RightsStatus(ctx, chatID, req.actor, req.pool)

	case "help":
		return private(helpText(req.kind)), nil

	case "admin":
		if !r.isAdmin(req) {
			return private("This command is for admins."), nil
		}
		return r.dispatchAdmin(ctx, req)
	}
	return private("Unknown command. Try /help."), nil
}

func (r *Router) dispatchAdmin(ctx context.Context, req *request) (*engine.Result, error) {
	chatID := req.msg.ChatID
	if len(req.pos) == 0 {
		return usage(adminUsage), nil
	}
	sub := strings.ToLower(req.pos[0])
	args := req.pos[1:]

	switch sub {
	case "report":
		pool := req.pool
		period := engine.PeriodDay
		day := ""
		rest := args
		if len(rest) > 0 && isPoolName(rest[0]) {
			pool = rest[0]
			rest = rest[1:]
		}
		if len(rest) > 0 && isPeriod(rest[0]) {
			period = rest[0]
			rest = rest[1:]
		}
		if len(rest) > 0 {
			day = rest[0]
		}
		if pool == "" {
			return usage("/admin report <morning|evening|night> [day|week|month] [date]"), nil
		}
		return r.eng.OverallReport(ctx, chatID, req.actor, pool, period, day)

	case "user":
		if len(args) < 1 {
			return usage("/admin user <user id> [date] [date]"), nil
		}
		target, res := parseTarget(args[0])
		if res != nil {
			return res, nil
		}
		day, day2 := "", ""
		if len(args) > 1 {
			day = args[1]
		}
		if len(args) > 2 {
			day2 = args[2]
		}
		return r.eng.UserReport(ctx, chatID, req.actor, target, day, day2)

	case "grant":
		if len(args) < 2 {
			return usage("/admin grant <user id> <5|10|20>"), nil
		}
		target, res := parseTarget(args[0])
		if res != nil {
			return res, nil
		}
		dur, ok := parseInt(args[1])
		if !ok {
			return usage("/admin grant <user id> <5|10|20>"), nil
		}
		return r.eng.GrantExtraRight(ctx, chatID, req.actor, target, dur)

	case "revoke":
		if len(args) < 3 {
			return usage("/admin revoke <user id> <duration> <normal|extra>"), nil
		}
		target, res := parseTarget(args[0])
		if res != nil {
			return res, nil
		}
		dur, ok := parseInt(args[1])
		if !ok {
			return usage("/admin revoke <user id> <duration> <normal|extra>"), nil
		}
		return r.eng.RevokeRight(ctx, chatID, req.actor, target, dur, strings.ToLower(args[2]))

	case "reserve":
		if len(args) < 4 {
			return usage("/admin reserve <user id> <pool> <10|20> <HH:MM>"), nil
		}
		target, res := parseTarget(args[0])
		if res != nil {
			return res, nil
		}
		dur, ok := parseInt(args[2])
		if !ok {
			return usage("/admin reserve <user id> <pool> <10|20> <HH:MM>"), nil
		}
		return r.eng.AdminCreateReservation(ctx, chatID, req.actor, target, strings.ToLower(args[1]), dur, args[3])

	case "cancelrez":
		if len(args) < 1 {
			return usage("/admin cancelrez <user id> [--all | --at HH:MM]"), nil
		}
		target, res := parseTarget(args[0])
		if res != nil {
			return res, nil
		}
		return r.eng.AdminCancelReservations(ctx, chatID, req.actor, target, req.bools["all"], req.flags["at"])

	case "endbreak":
		if len(args) < 1 {
			return usage("/admin endbreak <user id>"), nil
		}
		target, res := parseTarget(args[0])
		if res != nil {
			return res, nil
		}
		return r.eng.ForceEndBreak(ctx, chatID, req.actor, target)

	case "break":
		if len(args) < 1 {
			return usage("/admin break <minutes>"), nil
		}
		dur, ok := parseInt(args[0])
		if !ok {
			return usage("/admin break <minutes>"), nil
		}
		return r.eng.StartAdminBreak(ctx, chatID, req.actor, dur)

	case "resume":
		return r.eng.EndAdminBreak(ctx, chatID, req.actor)
	}
	return usage(adminUsage), nil
}

// requireThread rejects break-family commands issued in a reservation topic
// and vice versa, pointing at the right one.
func (r *Router) requireThread(req *request, want string) *engine.Result {
	if req.kind == want {
		return nil
	}
	switch want {
	case threadBreak:
		return private("Break commands belong in your pool's break topic.")
	default:
		return private("Reservation commands belong in your pool's reservation topic.")
	}
}

func parseInt(tok string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(tok))
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseTarget(tok string) (engine.Target, *engine.Result) {
	tok = strings.TrimPrefix(strings.TrimSpace(tok), "@")
	if _, err := strconv.ParseInt(tok, 10, 64); err != nil {
		return engine.Target{}, private("Give the target's numeric Telegram id.")
	}
	return engine.Target{UserID: tok}, nil
}

func isPoolName(s string) bool {
	switch strings.ToLower(s) {
	case "morning", "evening", "night":
		return true
	}
	return false
}

func isPeriod(s string) bool {
	switch strings.ToLower(s) {
	case engine.PeriodDay, engine.PeriodWeek, engine.PeriodMonth:
		return true
	}
	return false
}

func usage(u string) *engine.Result {
	return &engine.Result{Reply: "Usage: " + u, Private: true}
}

func private(text string) *engine.Result {
	return &engine.Result{Reply: text, Private: true}
}

const adminUsage = "/admin <report|user|grant|revoke|reserve|cancelrez|endbreak|break|resume>"

func helpText(kind string) string {
	var b strings.Builder
	switch kind {
	case threadRez:
		b.WriteString("Reservation commands:\n")
		b.WriteString("/reserve <10|20> <HH:MM> [--wait] - reserve a break slot\n")
		b.WriteString("/cancel [--all | --at HH:MM] - cancel reservations\n")
		b.WriteString("/reservations - your reservations and the pool schedule\n")
	case threadBreak:
		b.WriteString("Break commands:\n")
		b.WriteString("/break <10|20> - start a reserved break\n")
		b.WriteString("/urgent <10|20> - urgent break, skips the cooldown\n")
		b.WriteString("/extra <5|10|20> - extra break outside your shift\n")
		b.WriteString("/resume - end your break\n")
	default:
		b.WriteString("Admin commands:\n")
		b.WriteString(adminUsage + "\n")
	}
	b.WriteString("/rights - your remaining break rights")
	return b.String()
}
