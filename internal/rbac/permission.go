package rbac

// Permission is a stable string identifier of a single admin capability.
// The set of permissions is closed: handlers check against these constants
// and the role catalog grants them, nothing is defined at runtime.
type Permission string

const (
	// Content management.
	PermManageAttachmentsBR        Permission = "manage_attachments_br"
	PermManageAttachmentsMP        Permission = "manage_attachments_mp"
	PermManageSuggestedAttachments Permission = "manage_suggested_attachments"
	PermManageUserAttachments      Permission = "manage_user_attachments"
	PermManageGuidesBR             Permission = "manage_guides_br"
	PermManageGuidesMP             Permission = "manage_guides_mp"
	PermManageTexts                Permission = "manage_texts"
	PermManageCMS                  Permission = "manage_cms"

	// System management.
	PermManageChannels   Permission = "manage_channels"
	PermManageAdmins     Permission = "manage_admins"
	PermManageCategories Permission = "manage_categories"
	PermManageSettings   Permission = "manage_settings"
	PermManageUsers      Permission = "manage_users"

	// Communications.
	PermSendNotifications            Permission = "send_notifications"
	PermManageNotificationSettings   Permission = "manage_notification_settings"
	PermManageScheduledNotifications Permission = "manage_scheduled_notifications"

	// Support.
	PermManageTickets Permission = "manage_tickets"
	PermManageFAQs    Permission = "manage_faqs"
	PermViewFeedback  Permission = "view_feedback"

	// Moderation and reports.
	PermModerateContent Permission = "moderate_content"
	PermManageReports   Permission = "manage_reports"

	// Data and reporting.
	PermViewAnalytics Permission = "view_analytics"
	PermBackupData    Permission = "backup_data"
	PermImportExport  Permission = "import_export"

	// Data health.
	PermViewHealthReports Permission = "view_health_reports"
	PermRunHealthChecks   Permission = "run_health_checks"
	PermFixDataIssues     Permission = "fix_data_issues"

	// PermAll is a legacy wildcard kept for rows seeded by old deployments.
	PermAll Permission = "all"
)

func (p Permission) String() string {
	return string(p)
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Union merges other into a new set, leaving both arguments unchanged.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// List returns the permissions as a slice in unspecified order.
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// Strings returns the permission identifiers as strings, for storage rows.
func (s PermissionSet) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	return out
}
