package bot

import (
	"context"
	"time"

	"github.com/maxbolgarin/abstract"
	tele "gopkg.in/telebot.v4"

	"github.com/armorybot/armory/internal/rbac"
)

const handlerTimeout = 10 * time.Second

// requireAdmin gates a handler behind an admin row check.
// The check goes to the store on every call: losing admin status takes
// effect on the next interaction.
func (b *Bot) requireAdmin(next tele.HandlerFunc) tele.HandlerFunc {
	return b.observe(func(c tele.Context) error {
		ctx, cancel := handlerContext()
		defer cancel()

		if !b.roles.IsAdmin(ctx, senderID(c)) {
			b.metrics.IncPermissionCheck(false)
			return b.deny(c)
		}
		b.metrics.IncPermissionCheck(true)
		return next(c)
	})
}

// requirePermission gates a handler behind a specific permission.
// A super admin passes every permission check.
func (b *Bot) requirePermission(p rbac.Permission, next tele.HandlerFunc) tele.HandlerFunc {
	return b.observe(func(c tele.Context) error {
		ctx, cancel := handlerContext()
		defer cancel()

		userID := senderID(c)
		if !b.roles.HasPermission(ctx, userID, p) && !b.roles.IsSuperAdmin(ctx, userID) {
			b.metrics.IncPermissionCheck(false)
			return b.deny(c)
		}
		b.metrics.IncPermissionCheck(true)
		return next(c)
	})
}

// requireSuperAdmin gates a handler behind the super admin role.
// The check always bypasses the permission cache.
func (b *Bot) requireSuperAdmin(next tele.HandlerFunc) tele.HandlerFunc {
	return b.observe(func(c tele.Context) error {
		ctx, cancel := handlerContext()
		defer cancel()

		if !b.roles.IsSuperAdmin(ctx, senderID(c)) {
			b.metrics.IncPermissionCheck(false)
			return b.deny(c)
		}
		b.metrics.IncPermissionCheck(true)
		return next(c)
	})
}

// observe wraps a handler with duration metrics.
func (b *Bot) observe(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		tm := abstract.StartTimer()
		err := next(c)
		b.metrics.ObserveHandlerDuration(tm.ElapsedTime())
		return err
	}
}

func (b *Bot) deny(c tele.Context) error {
	b.log.Warn("access denied", "user_id", senderID(c))

	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: msgAccessDenied})
	}
	return c.Send(msgAccessDenied)
}

func handlerContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}
