package sharepoint

import (
	"strings"
	"time"
)

// PrincipalKind is the typed classification of a principal. It always comes
// from the service response (SharePoint PrincipalType, Graph @odata.type and
// groupTypes), never from sniffing the shape of a login name.
type PrincipalKind int

const (
	PrincipalUnknown PrincipalKind = iota
	PrincipalUser
	PrincipalSiteGroup     // membership is local to one site collection
	PrincipalSecurityGroup // directory security group, tenant-global
	PrincipalM365Group     // directory M365 (unified) group, tenant-global
)

// String returns the canonical name of the kind
func (k PrincipalKind) String() string {
	switch k {
	case PrincipalUser:
		return "User"
	case PrincipalSiteGroup:
		return "SiteGroup"
	case PrincipalSecurityGroup:
		return "SecurityGroup"
	case PrincipalM365Group:
		return "M365Group"
	default:
		return "Unknown"
	}
}

// IsGroup returns true for any of the three group kinds
func (k PrincipalKind) IsGroup() bool {
	return k == PrincipalSiteGroup || k == PrincipalSecurityGroup || k == PrincipalM365Group
}

// IsDirectoryGroup returns true for tenant-global directory groups
func (k PrincipalKind) IsDirectoryGroup() bool {
	return k == PrincipalSecurityGroup || k == PrincipalM365Group
}

// SharePoint PrincipalType flag values as returned by the REST API
const (
	PrincipalTypeUser            = 1
	PrincipalTypeDistribution    = 2
	PrincipalTypeSecurity        = 4
	PrincipalTypeSharePointGroup = 8
)

// KindFromPrincipalType maps a SharePoint PrincipalType value to a typed kind.
// M365 groups surface in SharePoint as security principals; the directory
// client refines them to PrincipalM365Group once group properties are known.
func KindFromPrincipalType(t int) PrincipalKind {
	switch t {
	case PrincipalTypeUser:
		return PrincipalUser
	case PrincipalTypeSecurity, PrincipalTypeDistribution:
		return PrincipalSecurityGroup
	case PrincipalTypeSharePointGroup:
		return PrincipalSiteGroup
	default:
		return PrincipalUnknown
	}
}

// Principal represents a user or group granted access
type Principal struct {
	ID        int64 // site-scoped principal ID
	Kind      PrincipalKind
	Title     string
	LoginName string
	Email     string
}

// GetDisplayName returns the best display name for the principal
func (p *Principal) GetDisplayName() string {
	if p.Title != "" {
		return p.Title
	}
	if p.LoginName != "" {
		return p.LoginName
	}
	return p.Email
}

// DirectoryObjectID extracts the directory object ID from a claims-encoded
// login name such as "c:0t.c|tenant|<guid>" or
// "c:0o.c|federateddirectoryclaimprovider|<guid>". Returns empty for
// principals without a directory identity.
func (p *Principal) DirectoryObjectID() string {
	idx := strings.LastIndex(p.LoginName, "|")
	if idx < 0 || idx == len(p.LoginName)-1 {
		return ""
	}
	return p.LoginName[idx+1:]
}

// IsSharingLinkGroup reports whether a site group is one of the synthetic
// "SharingLinks.<guid>.<flavor>.<share-id>" groups SharePoint creates to
// back sharing links.
func (p *Principal) IsSharingLinkGroup() bool {
	return p.Kind == PrincipalSiteGroup && strings.HasPrefix(p.Title, "SharingLinks.")
}

// RoleAssignment attaches a principal to a resource with one or more
// permission levels.
type RoleAssignment struct {
	Principal        *Principal
	PermissionLevels []string
}

// AssignmentKind says how a resolved account came to hold access
type AssignmentKind string

const (
	AssignmentDirect      AssignmentKind = "Direct"
	AssignmentGroup       AssignmentKind = "Group"
	AssignmentSharingLink AssignmentKind = "SharingLink"
)

// Resolution marks whether an access entry is a fully resolved account or a
// placeholder standing in for a group that could not be expanded.
type Resolution string

const (
	ResolutionResolved Resolution = "Resolved"
	ResolutionExcluded Resolution = "Excluded"
	ResolutionDepthCap Resolution = "DepthCapped"
	ResolutionFailed   Resolution = "Failed"
)

// IsPlaceholder reports whether the entry names an unexpanded group rather
// than a leaf account.
func (r Resolution) IsPlaceholder() bool {
	return r != ResolutionResolved
}

// AccessEntry is a flattened output row: one resolved leaf account (or group
// placeholder) holding one permission level on one resource, with full
// provenance of the group chain that granted it.
type AccessEntry struct {
	Resource        *Resource
	Account         *Principal
	PermissionLevel string
	AssignmentKind  AssignmentKind
	Resolution      Resolution
	ViaGroup        string // immediate group that granted the access
	ParentGroup     string // the group that contains ViaGroup, empty at the top
	NestingLevel    int
	SharedAt        *time.Time
	SharedBy        string
}

// ShareDetail is per-account share metadata attached to a resource (who
// shared it with the account and when).
type ShareDetail struct {
	AccountLogin string
	AccountEmail string
	SharedBy     string
	SharedAt     *time.Time
}

// ObjectType constants for permission targets
const (
	ObjectTypeWeb  = "web"
	ObjectTypeList = "list"
	ObjectTypeItem = "item"
)

// Resource is a node with independently defined access control, queued for
// the permission accessor. Key is the web ID, list ID, or item GUID
// depending on ObjectType.
type Resource struct {
	ObjectType string
	Key        string
	ListID     string // set for items
	ItemID     int    // set for items
	Title      string
	URL        string
	HasUnique  bool
	Shares     []ShareDetail
}

// ShareFor returns the share metadata recorded for the given account, or nil.
func (r *Resource) ShareFor(p *Principal) *ShareDetail {
	for i := range r.Shares {
		s := &r.Shares[i]
		if s.AccountLogin != "" && strings.EqualFold(s.AccountLogin, p.LoginName) {
			return s
		}
		if s.AccountEmail != "" && strings.EqualFold(s.AccountEmail, p.Email) {
			return s
		}
	}
	return nil
}
