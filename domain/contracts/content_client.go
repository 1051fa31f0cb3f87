package contracts

import (
	"context"

	"sptrace/domain/sharepoint"
)

// PermissionTarget identifies a SharePoint object that can carry role
// assignments.
type PermissionTarget struct {
	ObjectType string // "web", "list", or "item"
	ObjectID   string // web ID or list ID; list ID for items
	ListItemID int    // required for items
}

// ContentService opens connections to site URLs. A Connect against a URL
// that is not a web root returns ErrNotFound; an authorization failure
// returns ErrUnauthorized.
type ContentService interface {
	Connect(ctx context.Context, siteURL string) (ContentConnection, error)
}

// ContentConnection is a site-scoped view of the content service: web and
// list enumeration, paginated items, unique-permission flags, role
// assignments, and site-scoped group membership.
type ContentConnection interface {
	// Web returns the connected web's metadata.
	Web(ctx context.Context) (*sharepoint.Web, error)

	// Subwebs enumerates the immediate child webs of the connected web.
	Subwebs(ctx context.Context) ([]*sharepoint.Web, error)

	// Lists enumerates all lists of the connected web.
	Lists(ctx context.Context) ([]*sharepoint.List, error)

	// ListByRootFolder resolves a list by its root folder's server-relative
	// path. Returns ErrNotFound when no list matches.
	ListByRootFolder(ctx context.Context, serverRelativePath string) (*sharepoint.List, error)

	// Items walks a list's items in pages of batchSize, invoking onItem for
	// each. The callback's error aborts the walk.
	Items(ctx context.Context, listID string, batchSize int, onItem func(*sharepoint.Item) error) error

	// HasUniquePermissions reports whether the target defines its access
	// control independently of its parent.
	HasUniquePermissions(ctx context.Context, target PermissionTarget) (bool, error)

	// RoleAssignments reads the target's role assignments with principals
	// and permission level names expanded.
	RoleAssignments(ctx context.Context, target PermissionTarget) ([]*sharepoint.RoleAssignment, error)

	// SiteGroups enumerates the site collection's groups.
	SiteGroups(ctx context.Context) ([]*sharepoint.Principal, error)

	// SiteUsers enumerates the site collection's user information list.
	SiteUsers(ctx context.Context) ([]*sharepoint.Principal, error)

	// SiteGroupMembers returns the direct members of a site group.
	SiteGroupMembers(ctx context.Context, groupID int64) ([]*sharepoint.Principal, error)

	// ItemShareDetails reads per-account share metadata for an item, when
	// the sharing API exposes any.
	ItemShareDetails(ctx context.Context, itemGUID string) ([]sharepoint.ShareDetail, error)
}
