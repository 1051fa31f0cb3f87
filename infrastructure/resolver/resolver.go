// Package resolver flattens group principals into leaf accounts with full
// provenance. It traverses both identity systems: site-local groups through
// the content connection and directory security/M365 groups through the
// directory client, with per-group caching so a group referenced by many
// resources in one job is fetched exactly once.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"sptrace/domain/contracts"
	"sptrace/domain/scan"
	"sptrace/domain/sharepoint"
	"sptrace/logging"
)

// ResolvedAccount is one leaf account (or unexpanded-group placeholder)
// reached through a group assignment, with the provenance of how it was
// reached. The accessor turns these into access entries.
type ResolvedAccount struct {
	Account      *sharepoint.Principal
	Resolution   sharepoint.Resolution
	ViaGroup     string
	ParentGroup  string
	NestingLevel int
}

// frame is one unit of pending expansion work on the resolution stack.
type frame struct {
	kind              sharepoint.PrincipalKind
	siteGroupID       int64  // set for site group frames
	directoryObjectID string // set for directory group frames
	displayName       string
	nesting           int
	parent            string // display name of the group that contained this one
}

func (f *frame) key() string {
	if f.kind == sharepoint.PrincipalSiteGroup {
		return fmt.Sprintf("site:%d", f.siteGroupID)
	}
	return "dir:" + strings.ToLower(f.directoryObjectID)
}

func (f *frame) principal() *sharepoint.Principal {
	return &sharepoint.Principal{
		ID:        f.siteGroupID,
		Kind:      f.kind,
		Title:     f.displayName,
		LoginName: f.directoryObjectID,
	}
}

// Resolver expands group principals into flattened account sets.
type Resolver struct {
	directory contracts.DirectoryClient
	params    *scan.Parameters
	logger    *logging.Logger
}

// New creates a resolver over the given directory client and scan
// parameters.
func New(directory contracts.DirectoryClient, params *scan.Parameters) *Resolver {
	return &Resolver{
		directory: directory,
		params:    params,
		logger:    logging.Default().WithComponent("resolver"),
	}
}

// Resolve returns every leaf account ultimately reachable through the given
// group, with provenance. The assigned group itself is level 0: its direct
// user members resolve at nesting 0, members of nested groups at nesting 1
// and deeper. A group past the depth cap, matching the exclusion list, or
// failing its member lookup never silently disappears; it yields exactly one
// placeholder naming the group.
func (r *Resolver) Resolve(ctx context.Context, conn contracts.ContentConnection, rc *Context, group *sharepoint.Principal) ([]*ResolvedAccount, error) {
	if group == nil || !group.Kind.IsGroup() {
		return nil, fmt.Errorf("principal is not a group")
	}

	root := &frame{
		kind:              group.Kind,
		siteGroupID:       group.ID,
		directoryObjectID: group.DirectoryObjectID(),
		displayName:       group.GetDisplayName(),
		nesting:           0,
	}

	var resolved []*ResolvedAccount
	visited := map[string]bool{root.key(): true}
	stack := []*frame{root}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return resolved, fmt.Errorf("resolution canceled: %w", err)
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.nesting > r.params.MaxNestingLevel {
			r.logger.Debug("Group past nesting depth cap, emitting placeholder",
				"group", f.displayName, "nesting_level", f.nesting)
			resolved = append(resolved, r.placeholder(f, sharepoint.ResolutionDepthCap))
			continue
		}

		if r.isExcludedGroup(f.displayName) {
			r.logger.Debug("Group on exclusion list, emitting placeholder", "group", f.displayName)
			resolved = append(resolved, r.placeholder(f, sharepoint.ResolutionExcluded))
			continue
		}

		accounts, nested, err := r.expand(ctx, conn, rc, f)
		if err != nil {
			r.logger.Warn("Group member lookup failed, emitting placeholder",
				"group", f.displayName, "error", err.Error())
			resolved = append(resolved, r.placeholder(f, sharepoint.ResolutionFailed))
			continue
		}

		resolved = append(resolved, accounts...)

		for _, nf := range nested {
			if visited[nf.key()] {
				r.logger.Debug("Skipping already-visited group (cycle or diamond)",
					"group", nf.displayName, "via", f.displayName)
				continue
			}
			visited[nf.key()] = true
			stack = append(stack, nf)
		}
	}

	return resolved, nil
}

// expand fetches a frame's direct members, emitting accounts and returning
// nested group frames for the stack.
func (r *Resolver) expand(ctx context.Context, conn contracts.ContentConnection, rc *Context, f *frame) ([]*ResolvedAccount, []*frame, error) {
	if f.kind == sharepoint.PrincipalSiteGroup {
		return r.expandSiteGroup(ctx, conn, rc, f)
	}
	return r.expandDirectoryGroup(ctx, rc, f)
}

func (r *Resolver) expandSiteGroup(ctx context.Context, conn contracts.ContentConnection, rc *Context, f *frame) ([]*ResolvedAccount, []*frame, error) {
	members, ok := rc.SiteGroupMembers(f.siteGroupID)
	if !ok {
		var err error
		members, err = conn.SiteGroupMembers(ctx, f.siteGroupID)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch site group members: %w", err)
		}
		rc.StoreSiteGroupMembers(f.siteGroupID, members)
	}

	var (
		accounts []*ResolvedAccount
		nested   []*frame
	)
	for _, m := range members {
		switch {
		case m.Kind == sharepoint.PrincipalUser:
			if r.isExcludedAccount(m) {
				r.logger.Debug("Skipping excluded account", "login", m.LoginName)
				continue
			}
			rc.StoreDisplayName(m.LoginName, m.Title)
			accounts = append(accounts, r.account(m, f))

		case m.Kind.IsDirectoryGroup():
			objectID := m.DirectoryObjectID()
			if objectID == "" {
				r.logger.Warn("Directory group member has no object id, emitting placeholder",
					"group", f.displayName, "member", m.GetDisplayName())
				accounts = append(accounts, r.placeholder(&frame{
					kind:        m.Kind,
					displayName: m.GetDisplayName(),
					nesting:     f.nesting + 1,
					parent:      f.displayName,
				}, sharepoint.ResolutionFailed))
				continue
			}
			nested = append(nested, &frame{
				kind:              m.Kind,
				directoryObjectID: objectID,
				displayName:       m.GetDisplayName(),
				nesting:           f.nesting + 1,
				parent:            f.displayName,
			})

		case m.Kind == sharepoint.PrincipalSiteGroup:
			nested = append(nested, &frame{
				kind:        sharepoint.PrincipalSiteGroup,
				siteGroupID: m.ID,
				displayName: m.GetDisplayName(),
				nesting:     f.nesting + 1,
				parent:      f.displayName,
			})

		default:
			r.logger.Debug("Skipping member with unknown principal kind",
				"group", f.displayName, "member", m.GetDisplayName())
		}
	}
	return accounts, nested, nil
}

func (r *Resolver) expandDirectoryGroup(ctx context.Context, rc *Context, f *frame) ([]*ResolvedAccount, []*frame, error) {
	// The group object refines the kind and display name; cached per job so
	// repeated references cost nothing.
	if g, ok := rc.GroupObject(f.directoryObjectID); ok {
		applyGroupObject(f, g)
	} else if r.directory != nil {
		g, err := r.directory.GetGroup(ctx, f.directoryObjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch directory group: %w", err)
		}
		rc.StoreGroupObject(f.directoryObjectID, g)
		applyGroupObject(f, g)
	}

	members, ok := rc.DirectoryMembers(f.directoryObjectID)
	if !ok {
		if r.directory == nil {
			return nil, nil, fmt.Errorf("no directory client configured")
		}
		var err error
		members, err = r.directory.GetGroupMembers(ctx, f.directoryObjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch directory group members: %w", err)
		}
		rc.StoreDirectoryMembers(f.directoryObjectID, members)
	}

	var (
		accounts []*ResolvedAccount
		nested   []*frame
	)
	for _, m := range members {
		switch {
		case m.Kind == sharepoint.PrincipalUser:
			p := &sharepoint.Principal{
				Kind:      sharepoint.PrincipalUser,
				Title:     m.DisplayName,
				LoginName: m.UserPrincipalName,
				Email:     m.Email,
			}
			if p.Title == "" {
				if name, ok := rc.DisplayName(p.LoginName); ok {
					p.Title = name
				}
			}
			if r.isExcludedAccount(p) {
				r.logger.Debug("Skipping excluded account", "login", p.LoginName)
				continue
			}
			rc.StoreDisplayName(p.LoginName, p.Title)
			accounts = append(accounts, r.account(p, f))

		case m.Kind.IsDirectoryGroup():
			nested = append(nested, &frame{
				kind:              m.Kind,
				directoryObjectID: m.ObjectID,
				displayName:       m.DisplayName,
				nesting:           f.nesting + 1,
				parent:            f.displayName,
			})
		}
	}
	return accounts, nested, nil
}

func applyGroupObject(f *frame, g *contracts.DirectoryGroup) {
	if g == nil {
		return
	}
	if g.Kind.IsDirectoryGroup() {
		f.kind = g.Kind
	}
	if g.DisplayName != "" {
		f.displayName = g.DisplayName
	}
}

func (r *Resolver) account(p *sharepoint.Principal, f *frame) *ResolvedAccount {
	return &ResolvedAccount{
		Account:      p,
		Resolution:   sharepoint.ResolutionResolved,
		ViaGroup:     f.displayName,
		ParentGroup:  f.parent,
		NestingLevel: f.nesting,
	}
}

func (r *Resolver) placeholder(f *frame, res sharepoint.Resolution) *ResolvedAccount {
	return &ResolvedAccount{
		Account:      f.principal(),
		Resolution:   res,
		ViaGroup:     f.displayName,
		ParentGroup:  f.parent,
		NestingLevel: f.nesting,
	}
}

func (r *Resolver) isExcludedGroup(displayName string) bool {
	for _, g := range r.params.ExcludedGroups {
		if strings.EqualFold(g, displayName) {
			return true
		}
	}
	return false
}

func (r *Resolver) isExcludedAccount(p *sharepoint.Principal) bool {
	for _, a := range r.params.ExcludedAccounts {
		if strings.EqualFold(a, p.LoginName) || strings.EqualFold(a, p.Title) {
			return true
		}
	}
	return false
}
