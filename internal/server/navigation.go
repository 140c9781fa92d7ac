package server

import "clubsite/internal/models"

// navItem is one link in the site header or dashboard sidebar. An empty Href
// renders as a plain label.
type navItem struct {
	Label string
	Href  string
}

var siteNav = []navItem{
	{Label: "About", Href: "/#about"},
	{Label: "Pillars", Href: "/#pillars"},
	{Label: "Activities", Href: "/#activities"},
	{Label: "Membership", Href: "/#membership"},
	{Label: "Newsletter", Href: "/newsletter"},
	{Label: "Member Dashboard", Href: "/dashboard"},
}

// navItems returns the site header links. They are the same for every role.
func navItems(models.Role) []navItem {
	out := make([]navItem, len(siteNav))
	copy(out, siteNav)
	return out
}

// sidebarItems returns the dashboard links visible to role. Manage Hours is
// shown to privileged roles only. Proposal and hour submission pages do not
// exist yet and are listed without a link.
func sidebarItems(role models.Role) []navItem {
	items := []navItem{{Label: "Overview", Href: "/dashboard"}}
	if models.Authorize(role, models.ActionEditHours) {
		items = append(items, navItem{Label: "Manage Hours", Href: "/dashboard/manage_hours"})
	}
	return append(items,
		navItem{Label: "Event Proposals"},
		navItem{Label: "Submit Async Hours"},
		navItem{Label: "Submit Sync Hours"},
	)
}
