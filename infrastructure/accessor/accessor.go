// Package accessor turns flagged resources into flattened access rows. For
// each resource with independently defined access control it reads the role
// assignments, drops non-substantive permission levels, resolves group
// principals through the resolution engine, and emits one entry per
// (resource, leaf account, permission level) in stable display-name order.
package accessor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"sptrace/domain/contracts"
	"sptrace/domain/scan"
	"sptrace/domain/sharepoint"
	"sptrace/infrastructure/resolver"
	"sptrace/logging"
)

// Accessor resolves flagged resources into access entries.
type Accessor struct {
	resolver *resolver.Resolver
	params   *scan.Parameters
	logger   *logging.Logger
}

// New creates an accessor over the given resolver and scan parameters.
func New(res *resolver.Resolver, params *scan.Parameters) *Accessor {
	return &Accessor{
		resolver: res,
		params:   params,
		logger:   logging.Default().WithComponent("accessor"),
	}
}

// AccessEntries reads the resource's role assignments and resolves every
// principal. A failed group resolution yields a placeholder for that group
// and never aborts the resource; only the role assignment read itself can
// fail the call.
func (a *Accessor) AccessEntries(ctx context.Context, conn contracts.ContentConnection, rc *resolver.Context, res *sharepoint.Resource) ([]*sharepoint.AccessEntry, error) {
	target := contracts.PermissionTarget{
		ObjectType: res.ObjectType,
		ObjectID:   res.Key,
	}
	if res.ObjectType == sharepoint.ObjectTypeItem {
		target.ObjectID = res.ListID
		target.ListItemID = res.ItemID
	}

	assignments, err := conn.RoleAssignments(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("read role assignments for %s %s: %w", res.ObjectType, res.Key, err)
	}

	var entries []*sharepoint.AccessEntry
	for _, ra := range assignments {
		levels := a.substantiveLevels(ra.PermissionLevels)
		if len(levels) == 0 {
			continue
		}

		switch {
		case ra.Principal.Kind == sharepoint.PrincipalUser:
			if a.isExcludedAccount(ra.Principal) {
				a.logger.Debug("Skipping excluded account assignment",
					"login", ra.Principal.LoginName, "resource", res.URL)
				continue
			}
			for _, level := range levels {
				entries = append(entries, a.entry(res, &resolver.ResolvedAccount{
					Account:    ra.Principal,
					Resolution: sharepoint.ResolutionResolved,
				}, level, sharepoint.AssignmentDirect))
			}

		case ra.Principal.Kind.IsGroup():
			entries = append(entries, a.resolveGroupAssignment(ctx, conn, rc, res, ra.Principal, levels)...)

		default:
			a.logger.Debug("Skipping assignment with unknown principal kind",
				"principal", ra.Principal.GetDisplayName(), "resource", res.URL)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Account.GetDisplayName()) <
			strings.ToLower(entries[j].Account.GetDisplayName())
	})
	return entries, nil
}

// resolveGroupAssignment expands one group assignment into entries. Accounts
// resolved at nesting 0 are direct members of the assigned group and keep
// the Direct assignment kind; deeper accounts came through a nested group.
// Sharing-link backing groups mark every resulting entry as SharingLink.
func (a *Accessor) resolveGroupAssignment(ctx context.Context, conn contracts.ContentConnection, rc *resolver.Context, res *sharepoint.Resource, group *sharepoint.Principal, levels []string) []*sharepoint.AccessEntry {
	sharingLink := group.IsSharingLinkGroup()

	resolved, err := a.resolver.Resolve(ctx, conn, rc, group)
	if err != nil {
		a.logger.Warn("Group resolution failed, emitting placeholder",
			"group", group.GetDisplayName(), "resource", res.URL, "error", err.Error())
		resolved = []*resolver.ResolvedAccount{{
			Account:    group,
			Resolution: sharepoint.ResolutionFailed,
			ViaGroup:   group.GetDisplayName(),
		}}
	}

	var entries []*sharepoint.AccessEntry
	for _, acc := range resolved {
		kind := sharepoint.AssignmentGroup
		switch {
		case sharingLink:
			kind = sharepoint.AssignmentSharingLink
		case acc.NestingLevel == 0 && !acc.Resolution.IsPlaceholder():
			kind = sharepoint.AssignmentDirect
		}

		for _, level := range levels {
			entries = append(entries, a.entry(res, acc, level, kind))
		}
	}
	return entries
}

// entry builds one access row, merging in per-account share metadata when
// the resource carries any for this account.
func (a *Accessor) entry(res *sharepoint.Resource, acc *resolver.ResolvedAccount, level string, kind sharepoint.AssignmentKind) *sharepoint.AccessEntry {
	e := &sharepoint.AccessEntry{
		Resource:        res,
		Account:         acc.Account,
		PermissionLevel: level,
		AssignmentKind:  kind,
		Resolution:      acc.Resolution,
		ViaGroup:        acc.ViaGroup,
		ParentGroup:     acc.ParentGroup,
		NestingLevel:    acc.NestingLevel,
	}
	if !acc.Resolution.IsPlaceholder() {
		if share := res.ShareFor(acc.Account); share != nil {
			e.SharedAt = share.SharedAt
			e.SharedBy = share.SharedBy
		}
	}
	return e
}

func (a *Accessor) substantiveLevels(levels []string) []string {
	out := make([]string, 0, len(levels))
	for _, level := range levels {
		if a.isIgnoredLevel(level) {
			continue
		}
		out = append(out, level)
	}
	return out
}

func (a *Accessor) isIgnoredLevel(level string) bool {
	for _, ignored := range a.params.IgnoredPermissionLevels {
		if strings.EqualFold(ignored, level) {
			return true
		}
	}
	return false
}

func (a *Accessor) isExcludedAccount(p *sharepoint.Principal) bool {
	for _, excluded := range a.params.ExcludedAccounts {
		if strings.EqualFold(excluded, p.LoginName) || strings.EqualFold(excluded, p.Title) {
			return true
		}
	}
	return false
}
