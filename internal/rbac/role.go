package rbac

// SuperAdminRole is the distinguished highest-privilege role name.
// The system refuses any mutation that would leave it without a holder.
const SuperAdminRole = "super_admin"

// Role is a named, immutable set of permissions. The role name is the only
// reference used elsewhere in the system: assignments, storage rows and
// cache values all carry names, never Role objects.
type Role struct {
	Name        string
	DisplayName string
	Description string
	Icon        string
	Permissions PermissionSet
}

// Has reports whether the role grants the permission.
func (r Role) Has(p Permission) bool {
	return r.Permissions.Has(p)
}

// Catalog returns the fixed process-wide role definitions in display order.
// Roles are defined in code and seeded into the store idempotently at
// startup; they are not editable at runtime.
func Catalog() []Role {
	return []Role{
		{
			Name:        SuperAdminRole,
			DisplayName: "Head Admin",
			Description: "Full access to every section",
			Icon:        "👑",
			Permissions: NewPermissionSet(
				PermManageAttachmentsBR,
				PermManageAttachmentsMP,
				PermManageSuggestedAttachments,
				PermManageUserAttachments,
				PermManageGuidesBR,
				PermManageGuidesMP,
				PermManageTexts,
				PermManageCMS,
				PermManageChannels,
				PermManageAdmins,
				PermManageCategories,
				PermManageSettings,
				PermSendNotifications,
				PermManageNotificationSettings,
				PermManageScheduledNotifications,
				PermManageTickets,
				PermManageFAQs,
				PermViewFeedback,
				PermViewAnalytics,
				PermBackupData,
				PermImportExport,
				PermViewHealthReports,
				PermRunHealthChecks,
				PermFixDataIssues,
			),
		},
		{
			Name:        "br_admin",
			DisplayName: "Battle Royale Admin",
			Description: "Attachments, suggestions and guides for battle royale",
			Icon:        "🪂",
			Permissions: NewPermissionSet(
				PermManageAttachmentsBR,
				PermManageSuggestedAttachments,
				PermManageGuidesBR,
				PermViewAnalytics,
			),
		},
		{
			Name:        "mp_admin",
			DisplayName: "Multiplayer Admin",
			Description: "Attachments, suggestions and guides for multiplayer",
			Icon:        "🎮",
			Permissions: NewPermissionSet(
				PermManageAttachmentsMP,
				PermManageSuggestedAttachments,
				PermManageGuidesMP,
				PermViewAnalytics,
			),
		},
		{
			Name:        "full_content_admin",
			DisplayName: "Content Admin",
			Description: "Full content management: attachments, guides, texts and backups",
			Icon:        "📎",
			Permissions: NewPermissionSet(
				PermManageAttachmentsBR,
				PermManageAttachmentsMP,
				PermManageSuggestedAttachments,
				PermManageUserAttachments,
				PermManageGuidesBR,
				PermManageGuidesMP,
				PermManageTexts,
				PermManageCMS,
				PermManageCategories,
				PermSendNotifications,
				PermManageScheduledNotifications,
				PermBackupData,
				PermViewAnalytics,
			),
		},
		{
			Name:        "ua_moderator",
			DisplayName: "Community Moderator",
			Description: "Review, approve and reject user submitted attachments",
			Icon:        "🛡",
			Permissions: NewPermissionSet(
				PermManageUserAttachments,
				PermViewAnalytics,
			),
		},
		{
			Name:        "support_admin",
			DisplayName: "Support Admin",
			Description: "Tickets, FAQ and feedback",
			Icon:        "📞",
			Permissions: NewPermissionSet(
				PermManageTickets,
				PermManageFAQs,
				PermViewFeedback,
			),
		},
	}
}
