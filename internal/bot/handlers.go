package bot

import (
	"fmt"
	"strconv"

	"github.com/maxbolgarin/errm"
	tele "gopkg.in/telebot.v4"

	"github.com/armorybot/armory/internal/moderation"
	"github.com/armorybot/armory/internal/rbac"
)

const (
	reviewPageSize  = 10
	reportsPageSize = 10
	topLimit        = 10
)

// Static buttons. Per-instance data rides in the callback data field.
var (
	btnStats     = tele.Btn{Unique: "panel_stats", Text: "📊 Statistics"}
	btnQueue     = tele.Btn{Unique: "panel_queue", Text: "📝 Review queue"}
	btnReports   = tele.Btn{Unique: "panel_reports", Text: "🚨 Reports"}
	btnAdmins    = tele.Btn{Unique: "panel_admins", Text: "👥 Admins"}
	btnBroadcast = tele.Btn{Unique: "panel_broadcast", Text: "📣 Broadcast"}
	btnBack      = tele.Btn{Unique: "panel_back", Text: "⬅️ Back"}

	btnStatsRefresh = tele.Btn{Unique: "stats_refresh", Text: "🔄 Refresh"}
	btnTopWeapons   = tele.Btn{Unique: "stats_weapons", Text: "🔫 Top weapons"}
	btnTopUsers     = tele.Btn{Unique: "stats_users", Text: "🏆 Top contributors"}

	btnApprove = tele.Btn{Unique: "review_approve", Text: "✅ Approve"}
	btnReject  = tele.Btn{Unique: "review_reject", Text: "❌ Reject"}
	btnDelete  = tele.Btn{Unique: "review_delete", Text: "🗑 Delete"}
	btnBan     = tele.Btn{Unique: "review_ban", Text: "🚫 Ban author"}
	btnNext    = tele.Btn{Unique: "review_next", Text: "➡️ Next"}

	btnResolve = tele.Btn{Unique: "report_resolve"}

	btnAddAdmin    = tele.Btn{Unique: "admins_add", Text: "➕ Add admin"}
	btnRemoveAdmin = tele.Btn{Unique: "admins_remove"}
	btnAssignRole  = tele.Btn{Unique: "admins_role"}
)

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.requireAdmin(b.handleMenu))
	b.bot.Handle("/admin", b.requireAdmin(b.handleMenu))
	b.bot.Handle(&btnBack, b.requireAdmin(b.handleMenu))

	b.bot.Handle(&btnStats, b.requirePermission(rbac.PermViewAnalytics, b.handleStats))
	b.bot.Handle(&btnStatsRefresh, b.requirePermission(rbac.PermViewAnalytics, b.handleStatsRefresh))
	b.bot.Handle(&btnTopWeapons, b.requirePermission(rbac.PermViewAnalytics, b.handleTopWeapons))
	b.bot.Handle(&btnTopUsers, b.requirePermission(rbac.PermViewAnalytics, b.handleTopUsers))

	b.bot.Handle(&btnQueue, b.requirePermission(rbac.PermManageUserAttachments, b.handleQueue))
	b.bot.Handle(&btnNext, b.requirePermission(rbac.PermManageUserAttachments, b.handleQueue))
	b.bot.Handle(&btnApprove, b.requirePermission(rbac.PermManageUserAttachments, b.handleApprove))
	b.bot.Handle(&btnReject, b.requirePermission(rbac.PermManageUserAttachments, b.handleRejectAsk))
	b.bot.Handle(&btnDelete, b.requirePermission(rbac.PermManageUserAttachments, b.handleDelete))
	b.bot.Handle(&btnBan, b.requirePermission(rbac.PermManageUsers, b.handleBanAsk))

	b.bot.Handle(&btnReports, b.requirePermission(rbac.PermManageReports, b.handleReports))
	b.bot.Handle(&btnResolve, b.requirePermission(rbac.PermManageReports, b.handleResolve))

	b.bot.Handle(&btnAdmins, b.requirePermission(rbac.PermManageAdmins, b.handleAdmins))
	b.bot.Handle(&btnAddAdmin, b.requirePermission(rbac.PermManageAdmins, b.handleAddAdminAsk))
	b.bot.Handle(&btnRemoveAdmin, b.requirePermission(rbac.PermManageAdmins, b.handleRemoveAdmin))
	b.bot.Handle(&btnAssignRole, b.requirePermission(rbac.PermManageAdmins, b.handleAssignRole))

	b.bot.Handle(&btnBroadcast, b.requireSuperAdmin(b.handleBroadcastAsk))

	b.bot.Handle(tele.OnText, b.requireAdmin(b.handleText))
}

// handleMenu renders the main menu with only the sections the admin may
// open.
func (b *Bot) handleMenu(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	userID := senderID(c)
	b.sessions.clear(userID)

	perms := b.roles.GetUserPermissions(ctx, userID)
	super := b.roles.IsSuperAdmin(ctx, userID)

	k := NewKeyboard(2)
	if super || perms.Has(rbac.PermViewAnalytics) {
		k.Add(btnStats)
	}
	if super || perms.Has(rbac.PermManageUserAttachments) {
		k.Add(btnQueue)
	}
	if super || perms.Has(rbac.PermManageReports) {
		k.Add(btnReports)
	}
	if super || perms.Has(rbac.PermManageAdmins) {
		k.Add(btnAdmins)
	}
	if super {
		k.Add(btnBroadcast)
	}

	return b.respond(c, msgMainMenu, k.CreateInlineMarkup())
}

func (b *Bot) handleStats(c tele.Context) error {
	return b.renderStats(c, false)
}

func (b *Bot) handleStatsRefresh(c tele.Context) error {
	if err := b.renderStats(c, true); err != nil {
		return err
	}
	return c.Respond(&tele.CallbackResponse{Text: "Refreshed"})
}

// renderStats shows the dashboard. force skips the cache: the refresh
// button must show live numbers even inside the TTL window.
func (b *Bot) renderStats(c tele.Context, force bool) error {
	ctx, cancel := handlerContext()
	defer cancel()

	snap, err := b.mod.StatsCache().Stats(ctx, force)
	if err != nil {
		return errm.Wrap(err, "load stats")
	}

	markup := NewKeyboard().
		AddRow(btnStatsRefresh).
		AddRow(btnTopWeapons, btnTopUsers).
		AddFooter(btnBack).
		CreateInlineMarkup()

	return b.respond(c, formatStats(snap), markup)
}

func (b *Bot) handleTopWeapons(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	rows, err := b.mod.StatsCache().TopWeapons(ctx, topLimit, false)
	if err != nil {
		return errm.Wrap(err, "load top weapons")
	}

	return b.respond(c, formatTopWeapons(rows), SingleRow(btnStats, btnBack))
}

func (b *Bot) handleTopUsers(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	rows, err := b.mod.StatsCache().TopUsers(ctx, topLimit, false)
	if err != nil {
		return errm.Wrap(err, "load top users")
	}

	return b.respond(c, formatTopUsers(rows), SingleRow(btnStats, btnBack))
}

// handleQueue shows one pending submission with review actions.
// The callback data of the Next button carries the offset into the queue.
func (b *Bot) handleQueue(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	queue, err := b.mod.PendingQueue(ctx, reviewPageSize)
	if err != nil {
		return errm.Wrap(err, "load queue")
	}
	if len(queue) == 0 {
		return b.respond(c, msgQueueEmpty, SingleRow(btnBack))
	}

	offset, _ := strconv.Atoi(c.Data())
	offset %= len(queue)
	sub := queue[offset]

	return b.respond(c, formatSubmission(sub, len(queue)), reviewMarkup(sub, offset))
}

func reviewMarkup(sub moderation.Submission, offset int) *tele.ReplyMarkup {
	approve, reject, del := btnApprove, btnReject, btnDelete
	approve.Data = sub.ID
	reject.Data = sub.ID
	del.Data = sub.ID

	ban := btnBan
	ban.Data = strconv.FormatInt(sub.UserID, 10)

	// Next carries the offset of the following item so that skipping
	// does not require acting on the current one.
	next := btnNext
	next.Data = strconv.Itoa(offset + 1)

	return NewKeyboard().
		AddRow(approve, reject).
		AddRow(del, ban).
		AddFooter(next, btnBack).
		CreateInlineMarkup()
}

func (b *Bot) handleApprove(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	err := b.mod.Approve(ctx, c.Data(), senderID(c))
	switch {
	case errm.Is(err, moderation.ErrSubmissionNotFound):
		return c.Respond(&tele.CallbackResponse{Text: "Already gone"})
	case err != nil:
		return errm.Wrap(err, "approve")
	}

	b.metrics.IncModerationAction("approve")
	if err := c.Respond(&tele.CallbackResponse{Text: "Approved ✅"}); err != nil {
		return err
	}
	return b.handleQueue(c)
}

func (b *Bot) handleRejectAsk(c tele.Context) error {
	b.sessions.await(senderID(c), stateAwaitRejectNote, c.Data())
	return b.respond(c, msgAskRejectNote, SingleRow(btnQueue, btnBack))
}

func (b *Bot) handleDelete(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	err := b.mod.DeleteSubmission(ctx, c.Data(), senderID(c))
	switch {
	case errm.Is(err, moderation.ErrSubmissionNotFound):
		return c.Respond(&tele.CallbackResponse{Text: "Already gone"})
	case err != nil:
		return errm.Wrap(err, "delete")
	}

	b.metrics.IncModerationAction("delete")
	if err := c.Respond(&tele.CallbackResponse{Text: "Deleted 🗑"}); err != nil {
		return err
	}
	return b.handleQueue(c)
}

func (b *Bot) handleBanAsk(c tele.Context) error {
	b.sessions.await(senderID(c), stateAwaitBanReason, c.Data())
	return b.respond(c, msgAskBanReason, SingleRow(btnQueue, btnBack))
}

func (b *Bot) handleReports(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	reports, err := b.mod.OpenReports(ctx, reportsPageSize)
	if err != nil {
		return errm.Wrap(err, "load reports")
	}
	if len(reports) == 0 {
		return b.respond(c, msgReportsEmpty, SingleRow(btnBack))
	}

	k := NewKeyboard(4)
	for i, report := range reports {
		btn := btnResolve
		btn.Text = fmt.Sprintf("✅ %d", i+1)
		btn.Data = report.ID
		k.Add(btn)
	}
	k.AddFooter(btnBack)

	return b.respond(c, formatReports(reports), k.CreateInlineMarkup())
}

func (b *Bot) handleResolve(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	if err := b.mod.ResolveReport(ctx, c.Data(), senderID(c)); err != nil {
		return errm.Wrap(err, "resolve report")
	}

	b.metrics.IncModerationAction("resolve_report")
	if err := c.Respond(&tele.CallbackResponse{Text: "Resolved ✅"}); err != nil {
		return err
	}
	return b.handleReports(c)
}

func (b *Bot) handleAdmins(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	admins, err := b.roles.GetAdminList(ctx)
	if err != nil {
		return errm.Wrap(err, "load admins")
	}

	k := NewKeyboard(2)
	k.AddRow(btnAddAdmin)
	for _, admin := range admins {
		btn := btnRemoveAdmin
		btn.Text = fmt.Sprintf("➖ id%d", admin.UserID)
		btn.Data = strconv.FormatInt(admin.UserID, 10)
		k.Add(btn)
	}
	k.AddFooter(btnBack)

	return b.respond(c, formatAdminList(admins), k.CreateInlineMarkup())
}

func (b *Bot) handleAddAdminAsk(c tele.Context) error {
	b.sessions.await(senderID(c), stateAwaitAdminID, "")
	return b.respond(c, msgAskAdminID, SingleRow(btnAdmins, btnBack))
}

// handleRemoveAdmin removes the admin with all roles. Removing the last
// super admin is refused by the role manager and reported as a toast.
func (b *Bot) handleRemoveAdmin(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	userID, err := strconv.ParseInt(c.Data(), 10, 64)
	if err != nil {
		return errm.Wrap(err, "parse admin id")
	}

	err = b.roles.RemoveAdmin(ctx, userID)
	switch {
	case errm.Is(err, rbac.ErrLastSuperAdmin):
		return c.Respond(&tele.CallbackResponse{Text: msgLastSuperAdmin, ShowAlert: true})
	case err != nil:
		return errm.Wrap(err, "remove admin")
	}

	b.log.Info("admin removed", "user_id", userID, "by", senderID(c))
	return b.handleAdmins(c)
}

// handleAssignRole grants a role chosen from the role prompt.
// Callback data is "<user id>|<role name>".
func (b *Bot) handleAssignRole(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	parts := SplitBtnData(c.Data())
	if len(parts) != 2 {
		return errm.New("bad role assignment data")
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return errm.Wrap(err, "parse admin id")
	}

	err = b.roles.AssignRole(ctx, userID, parts[1], "")
	switch {
	case errm.Is(err, rbac.ErrUnknownRole):
		return c.Respond(&tele.CallbackResponse{Text: msgUnknownRole})
	case err != nil:
		return errm.Wrap(err, "assign role")
	}

	b.log.Info("role assigned", "user_id", userID, "role", parts[1], "by", senderID(c))
	if err := c.Respond(&tele.CallbackResponse{Text: "Role assigned ✅"}); err != nil {
		return err
	}
	return b.handleAdmins(c)
}

func (b *Bot) handleBroadcastAsk(c tele.Context) error {
	b.sessions.await(senderID(c), stateAwaitBroadcast, "")
	return b.respond(c, msgAskBroadcast, SingleRow(btnBack))
}

// handleText routes free-form text by the session state set by the
// *Ask handlers. Text without a pending state reopens the menu.
func (b *Bot) handleText(c tele.Context) error {
	ctx, cancel := handlerContext()
	defer cancel()

	userID := senderID(c)
	session := b.sessions.get(userID)
	b.sessions.clear(userID)

	switch session.State {
	case stateAwaitAdminID:
		newAdminID, err := strconv.ParseInt(c.Text(), 10, 64)
		if err != nil {
			b.sessions.await(userID, stateAwaitAdminID, "")
			return c.Send(msgBadUserID)
		}

		roles := b.roles.GetAllRoles(ctx)
		k := NewKeyboard(2)
		for _, role := range roles {
			btn := btnAssignRole
			btn.Text = role.Icon + " " + role.DisplayName
			btn.Data = CreateBtnData(strconv.FormatInt(newAdminID, 10), role.Name)
			k.Add(btn)
		}
		k.AddFooter(btnAdmins, btnBack)
		return c.Send(formatRolePrompt(newAdminID, roles), k.CreateInlineMarkup(), tele.ModeHTML)

	case stateAwaitRejectNote:
		err := b.mod.Reject(ctx, session.Payload, userID, c.Text())
		switch {
		case errm.Is(err, moderation.ErrSubmissionNotFound):
			return c.Send("That submission is already gone.", SingleRow(btnQueue))
		case err != nil:
			return errm.Wrap(err, "reject")
		}
		b.metrics.IncModerationAction("reject")
		return c.Send("Rejected ❌", SingleRow(btnQueue, btnBack))

	case stateAwaitBanReason:
		targetID, err := strconv.ParseInt(session.Payload, 10, 64)
		if err != nil {
			return errm.Wrap(err, "parse ban target")
		}
		if err := b.mod.BanUser(ctx, targetID, userID, c.Text()); err != nil {
			return errm.Wrap(err, "ban user")
		}
		b.metrics.IncModerationAction("ban")
		return c.Send(fmt.Sprintf("User id%d banned 🚫", targetID), SingleRow(btnQueue, btnBack))

	case stateAwaitBroadcast:
		// The state was set behind a super admin gate: re-check, the
		// role could have been revoked while typing.
		if !b.roles.IsSuperAdmin(ctx, userID) {
			return b.deny(c)
		}
		if b.broadcaster == nil {
			return c.Send("Broadcasts are not available right now.")
		}
		count, err := b.broadcaster.Broadcast(ctx, c.Text())
		if err != nil {
			return errm.Wrap(err, "broadcast")
		}
		return c.Send(fmt.Sprintf("Broadcast queued for %d users 📣", count))

	default:
		return b.handleMenu(c)
	}
}
