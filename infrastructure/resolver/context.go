package resolver

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"sptrace/domain/contracts"
	"sptrace/domain/sharepoint"
)

// Context carries the resolution caches for one job. The orchestrator owns
// it and resets the site-scoped caches at every job boundary; the directory
// member cache is process-lifetime and shared by reference, because
// directory groups are tenant-global and safe to reuse across jobs.
type Context struct {
	// Site-scoped, reset per job.
	siteGroupMembers map[int64][]*sharepoint.Principal
	userDisplayNames map[string]string
	groupObjects     map[string]*contracts.DirectoryGroup

	// Tenant-global, survives job boundaries.
	directoryMembers *gocache.Cache
}

// NewDirectoryMemberCache creates the process-lifetime directory member
// cache. Entries age out so a very long batch does not serve stale
// membership forever.
func NewDirectoryMemberCache() *gocache.Cache {
	return gocache.New(4*time.Hour, 30*time.Minute)
}

// NewContext creates a resolution context around a shared directory member
// cache.
func NewContext(directoryMembers *gocache.Cache) *Context {
	return &Context{
		siteGroupMembers: make(map[int64][]*sharepoint.Principal),
		userDisplayNames: make(map[string]string),
		groupObjects:     make(map[string]*contracts.DirectoryGroup),
		directoryMembers: directoryMembers,
	}
}

// ResetForJob discards the site-scoped caches. The directory member cache
// is deliberately left alone.
func (c *Context) ResetForJob() {
	c.siteGroupMembers = make(map[int64][]*sharepoint.Principal)
	c.userDisplayNames = make(map[string]string)
	c.groupObjects = make(map[string]*contracts.DirectoryGroup)
}

// SiteGroupMembers returns cached members for a site group.
func (c *Context) SiteGroupMembers(groupID int64) ([]*sharepoint.Principal, bool) {
	members, ok := c.siteGroupMembers[groupID]
	return members, ok
}

// StoreSiteGroupMembers caches a site group's member list.
func (c *Context) StoreSiteGroupMembers(groupID int64, members []*sharepoint.Principal) {
	c.siteGroupMembers[groupID] = members
}

// GroupObject returns a cached directory group object.
func (c *Context) GroupObject(objectID string) (*contracts.DirectoryGroup, bool) {
	g, ok := c.groupObjects[objectID]
	return g, ok
}

// StoreGroupObject caches a directory group object.
func (c *Context) StoreGroupObject(objectID string, g *contracts.DirectoryGroup) {
	c.groupObjects[objectID] = g
}

// DirectoryMembers returns cached members for a directory group.
func (c *Context) DirectoryMembers(objectID string) ([]*contracts.DirectoryMember, bool) {
	if c.directoryMembers == nil {
		return nil, false
	}
	v, ok := c.directoryMembers.Get(objectID)
	if !ok {
		return nil, false
	}
	members, ok := v.([]*contracts.DirectoryMember)
	return members, ok
}

// StoreDirectoryMembers caches a directory group's member list.
func (c *Context) StoreDirectoryMembers(objectID string, members []*contracts.DirectoryMember) {
	if c.directoryMembers == nil {
		return
	}
	c.directoryMembers.Set(objectID, members, gocache.DefaultExpiration)
}

// DisplayName returns a cached display name for a login.
func (c *Context) DisplayName(login string) (string, bool) {
	name, ok := c.userDisplayNames[login]
	return name, ok
}

// StoreDisplayName caches a login's display name.
func (c *Context) StoreDisplayName(login, name string) {
	if login == "" || name == "" {
		return
	}
	c.userDisplayNames[login] = name
}
