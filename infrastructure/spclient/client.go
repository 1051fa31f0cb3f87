package spclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/koltyakov/gosip"
	"github.com/koltyakov/gosip/api"

	"sptrace/domain/contracts"
	"sptrace/domain/sharepoint"
	"sptrace/infrastructure/retry"
	"sptrace/logging"
	"sptrace/spauth"
)

// OData field selectors for consistent API queries
const (
	WebFields  = `Id,Title,Url,WebTemplate`
	ListFields = `
		Id,Title,Hidden,ItemCount,BaseTemplate,
		RootFolder/ServerRelativeUrl
	`
	ItemFields           = `Id,GUID,FileSystemObjectType,File/ServerRelativeUrl,Folder/ServerRelativeUrl,FileLeafRef,Title,FileRef`
	PrincipalFields      = `Id,Title,LoginName,PrincipalType,Email`
	RoleAssignmentFields = `
		RoleAssignments/Member/Id,
		RoleAssignments/Member/Title,
		RoleAssignments/Member/LoginName,
		RoleAssignments/Member/PrincipalType,
		RoleAssignments/Member/Email,
		RoleAssignments/RoleDefinitionBindings/Name
	`
)

// Service creates site-scoped connections with app-only certificate auth.
// Connections are built per site URL: one batch touches many site
// collections and gosip binds auth to a single site.
type Service struct {
	authCfg spauth.Config
	policy  retry.Policy
	logger  *logging.Logger
}

// NewService creates a content service factory.
func NewService(authCfg spauth.Config, policy retry.Policy) *Service {
	return &Service{
		authCfg: authCfg,
		policy:  policy,
		logger:  logging.Default().WithComponent("content_client"),
	}
}

// Connect opens a connection to siteURL and verifies it resolves to a web.
// A URL that is not a web root maps to ErrNotFound; authorization failures
// map to ErrUnauthorized. Probe misses are answers, so they are not retried.
func (s *Service) Connect(ctx context.Context, siteURL string) (contracts.ContentConnection, error) {
	authClient, err := spauth.NewClient(s.authCfg, siteURL)
	if err != nil {
		return nil, fmt.Errorf("build auth client: %w", err)
	}

	conn := &Connection{
		sp:         api.NewSP(authClient),
		authClient: authClient,
		siteURL:    strings.TrimRight(siteURL, "/"),
		policy:     s.policy,
		logger:     s.logger,
	}

	// Probe the web to classify the URL before anything else runs on it.
	web, err := conn.Web(ctx)
	if err != nil {
		return nil, err
	}
	conn.cachedWebID = web.ID
	conn.cachedWebURL = web.URL

	return conn, nil
}

// Connection wraps the gosip API client for one site. It caches the web
// identity and provides the content operations the walker, accessor, and
// resolver need.
type Connection struct {
	sp           *api.SP
	authClient   *gosip.SPClient
	siteURL      string
	cachedWebID  string
	cachedWebURL string
	policy       retry.Policy
	logger       *logging.Logger
}

// conf creates a RequestConfig carrying the per-request context.
func (c *Connection) conf(ctx context.Context) *api.RequestConfig {
	return &api.RequestConfig{Context: ctx}
}

// mapStatusError folds gosip transport errors onto the contract sentinels.
// gosip surfaces the HTTP status inside the error text; the status is the
// only classification signal the REST layer exposes.
func mapStatusError(op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "404"):
		return fmt.Errorf("%s: %w", op, contracts.ErrNotFound)
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return fmt.Errorf("%s: %w", op, contracts.ErrUnauthorized)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Web retrieves the connected web's metadata and unique-permission flag.
func (c *Connection) Web(ctx context.Context) (*sharepoint.Web, error) {
	var normalized []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		res, err := c.sp.Conf(c.conf(ctx)).Web().Select(WebFields).Get()
		if err != nil {
			return mapStatusError("get web", err)
		}
		normalized = res.Normalized()
		return nil
	})
	if err != nil {
		return nil, err
	}

	var webData webJSON
	if err := json.Unmarshal(normalized, &webData); err != nil {
		return nil, fmt.Errorf("decode web: %w", err)
	}

	c.cachedWebID = webData.Id
	c.cachedWebURL = webData.Url

	hasUnique, err := c.HasUniquePermissions(ctx, contracts.PermissionTarget{ObjectType: sharepoint.ObjectTypeWeb})
	if err != nil {
		c.logger.Debug("Failed to check web unique assignments", "error", err.Error())
		hasUnique = false
	}

	return &sharepoint.Web{
		ID:        webData.Id,
		URL:       webData.Url,
		Title:     webData.Title,
		Template:  webData.WebTemplate,
		HasUnique: hasUnique,
	}, nil
}

// Subwebs enumerates the immediate child webs of the connected web.
func (c *Connection) Subwebs(ctx context.Context) ([]*sharepoint.Web, error) {
	var normalized []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		res, err := c.sp.Conf(c.conf(ctx)).Web().Webs().Select(WebFields).Get()
		if err != nil {
			return mapStatusError("get subwebs", err)
		}
		normalized = res.Normalized()
		return nil
	})
	if err != nil {
		return nil, err
	}

	var websData []webJSON
	if err := json.Unmarshal(normalized, &websData); err != nil {
		return nil, fmt.Errorf("decode subwebs: %w", err)
	}

	webs := make([]*sharepoint.Web, 0, len(websData))
	for _, w := range websData {
		webs = append(webs, &sharepoint.Web{
			ID:       w.Id,
			URL:      w.Url,
			Title:    w.Title,
			Template: w.WebTemplate,
		})
	}
	return webs, nil
}

// Lists enumerates all lists of the connected web with permission
// inheritance flags.
func (c *Connection) Lists(ctx context.Context) ([]*sharepoint.List, error) {
	var normalized []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		res, err := c.sp.Conf(c.conf(ctx)).Web().Lists().Select(ListFields).Expand(`RootFolder`).Get()
		if err != nil {
			return mapStatusError("get lists", err)
		}
		normalized = res.Normalized()
		return nil
	})
	if err != nil {
		return nil, err
	}

	var listsData []listJSON
	if err := json.Unmarshal(normalized, &listsData); err != nil {
		return nil, fmt.Errorf("decode lists: %w", err)
	}

	lists := make([]*sharepoint.List, 0, len(listsData))
	for _, l := range listsData {
		hasUnique, err := c.HasUniquePermissions(ctx, contracts.PermissionTarget{
			ObjectType: sharepoint.ObjectTypeList,
			ObjectID:   l.Id,
		})
		if err != nil {
			c.logger.Debug("Failed to check list unique assignments", "list_title", l.Title, "error", err.Error())
			hasUnique = false
		}

		lists = append(lists, &sharepoint.List{
			ID:           l.Id,
			WebID:        c.cachedWebID,
			Title:        l.Title,
			URL:          joinURL(c.cachedWebURL, l.RootFolder.ServerRelativeUrl),
			BaseTemplate: l.BaseTemplate,
			ItemCount:    l.ItemCount,
			Hidden:       l.Hidden,
			HasUnique:    hasUnique,
		})
	}
	return lists, nil
}

// ListByRootFolder resolves a list by its root folder's server-relative path.
func (c *Connection) ListByRootFolder(ctx context.Context, serverRelativePath string) (*sharepoint.List, error) {
	var normalized []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		res, err := c.sp.Conf(c.conf(ctx)).Web().GetList(serverRelativePath).
			Select(ListFields).Expand(`RootFolder`).Get()
		if err != nil {
			return mapStatusError("get list by root folder", err)
		}
		normalized = res.Normalized()
		return nil
	})
	if err != nil {
		return nil, err
	}

	var l listJSON
	if err := json.Unmarshal(normalized, &l); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if l.Id == "" {
		return nil, fmt.Errorf("get list by root folder %q: %w", serverRelativePath, contracts.ErrNotFound)
	}

	hasUnique, err := c.HasUniquePermissions(ctx, contracts.PermissionTarget{
		ObjectType: sharepoint.ObjectTypeList,
		ObjectID:   l.Id,
	})
	if err != nil {
		c.logger.Debug("Failed to check list unique assignments", "list_title", l.Title, "error", err.Error())
		hasUnique = false
	}

	return &sharepoint.List{
		ID:           l.Id,
		WebID:        c.cachedWebID,
		Title:        l.Title,
		URL:          joinURL(c.cachedWebURL, l.RootFolder.ServerRelativeUrl),
		BaseTemplate: l.BaseTemplate,
		ItemCount:    l.ItemCount,
		Hidden:       l.Hidden,
		HasUnique:    hasUnique,
	}, nil
}

// Items walks a list's items using gosip's native pagination, invoking
// onItem for each converted item.
func (c *Connection) Items(ctx context.Context, listID string, batchSize int, onItem func(*sharepoint.Item) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	items := c.sp.Conf(c.conf(ctx)).Web().Lists().GetByID(listID).Items().
		Select(ItemFields).
		Expand("File,Folder").
		Top(batchSize)

	var page *api.ItemsPage
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		p, err := items.GetPaged()
		if err != nil {
			return mapStatusError("get items page", err)
		}
		page = p
		return nil
	})
	if err != nil {
		return err
	}
	if page == nil { // empty list
		return nil
	}

	for p := page; ; {
		if ctx.Err() != nil {
			return fmt.Errorf("context canceled during pagination: %w", ctx.Err())
		}
		if p.Items == nil {
			break
		}

		for _, ir := range p.Items.Data() {
			if ctx.Err() != nil {
				return fmt.Errorf("context canceled during item processing: %w", ctx.Err())
			}

			item, err := c.convertItem(ctx, ir, listID)
			if err != nil {
				c.logger.Warn("Failed to convert item response", "list_id", listID, "error", err.Error())
				continue
			}
			if err := onItem(item); err != nil {
				return err
			}
		}

		if !p.HasNextPage() {
			return nil
		}

		err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
			next, err := p.GetNextPage()
			if err != nil {
				return mapStatusError("get next items page", err)
			}
			p = next
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// convertItem maps one paged item response to the domain model, including
// its unique-permission flag.
func (c *Connection) convertItem(ctx context.Context, ir api.ItemResp, listID string) (*sharepoint.Item, error) {
	var it itemJSON
	if err := json.Unmarshal(ir.Normalized(), &it); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}

	var (
		isFile   bool
		isFolder bool
		path     string
	)
	switch it.FileSystemObjectType {
	case sharepoint.FileSystemObjectTypeFile:
		isFile = true
		if it.File != nil {
			path = it.File.ServerRelativeUrl
		}
	case sharepoint.FileSystemObjectTypeFolder:
		isFolder = true
		if it.Folder != nil {
			path = it.Folder.ServerRelativeUrl
		}
	}
	if path == "" {
		path = it.FileRef
	}

	name := it.FileLeafRef
	if name == "" && it.Title != "" {
		name = it.Title
	}

	hasUnique, err := c.HasUniquePermissions(ctx, contracts.PermissionTarget{
		ObjectType: sharepoint.ObjectTypeItem,
		ObjectID:   listID,
		ListItemID: it.Id,
	})
	if err != nil {
		c.logger.Debug("Failed to check item unique assignments", "item_id", it.Id, "error", err.Error())
		hasUnique = false
	}

	return &sharepoint.Item{
		GUID:      it.GUID,
		ListID:    listID,
		ID:        it.Id,
		URL:       joinURL(c.cachedWebURL, path),
		Path:      path,
		Name:      name,
		IsFile:    isFile,
		IsFolder:  isFolder,
		HasUnique: hasUnique,
	}, nil
}

// HasUniquePermissions checks whether the target defines its own role
// assignments instead of inheriting them.
func (c *Connection) HasUniquePermissions(ctx context.Context, target contracts.PermissionTarget) (bool, error) {
	var hasUnique bool
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		sp := c.sp.Conf(c.conf(ctx))
		var (
			v   bool
			err error
		)
		switch target.ObjectType {
		case sharepoint.ObjectTypeWeb:
			v, err = sp.Web().Roles().HasUniqueAssignments()
		case sharepoint.ObjectTypeList:
			v, err = sp.Web().Lists().GetByID(target.ObjectID).Roles().HasUniqueAssignments()
		case sharepoint.ObjectTypeItem:
			v, err = sp.Web().Lists().GetByID(target.ObjectID).Items().GetByID(target.ListItemID).Roles().HasUniqueAssignments()
		default:
			return retry.Permanent(fmt.Errorf("unknown target type: %s", target.ObjectType))
		}
		if err != nil {
			return mapStatusError("check unique assignments", err)
		}
		hasUnique = v
		return nil
	})
	return hasUnique, err
}

// RoleAssignments reads the target's role assignments with principals and
// permission level names expanded, one RoleAssignment per principal.
func (c *Connection) RoleAssignments(ctx context.Context, target contracts.PermissionTarget) ([]*sharepoint.RoleAssignment, error) {
	const expand = `
		RoleAssignments,
		RoleAssignments/Member,
		RoleAssignments/RoleDefinitionBindings
	`

	var normalized []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		sp := c.sp.Conf(c.conf(ctx))
		var (
			data []byte
			err  error
		)
		switch target.ObjectType {
		case sharepoint.ObjectTypeWeb:
			res, werr := sp.Web().Select(RoleAssignmentFields).Expand(expand).Get()
			if werr == nil {
				data = res.Normalized()
			}
			err = werr
		case sharepoint.ObjectTypeList:
			res, lerr := sp.Web().Lists().GetByID(target.ObjectID).
				Select(RoleAssignmentFields).Expand(expand).Get()
			if lerr == nil {
				data = res.Normalized()
			}
			err = lerr
		case sharepoint.ObjectTypeItem:
			res, ierr := sp.Web().Lists().GetByID(target.ObjectID).Items().GetByID(target.ListItemID).
				Select(RoleAssignmentFields).Expand(expand).Get()
			if ierr == nil {
				data = res.Normalized()
			}
			err = ierr
		default:
			return retry.Permanent(fmt.Errorf("unknown target type: %s", target.ObjectType))
		}
		if err != nil {
			return mapStatusError("get role assignments", err)
		}
		normalized = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	return parseRoleAssignments(normalized)
}

// parseRoleAssignments converts role assignment JSON to domain models,
// merging the role definition bindings of each member into one assignment.
func parseRoleAssignments(data []byte) ([]*sharepoint.RoleAssignment, error) {
	var payload roleAssignmentsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// Fallback: array directly
		var ras []*roleAssignmentJSON
		if err2 := json.Unmarshal(data, &ras); err2 != nil {
			return nil, fmt.Errorf("decode role assignments: %v / %v", err, err2)
		}
		payload.RoleAssignments = ras
	}

	assignments := make([]*sharepoint.RoleAssignment, 0, len(payload.RoleAssignments))
	for _, ra := range payload.RoleAssignments {
		if ra == nil || ra.Member == nil {
			continue
		}

		levels := make([]string, 0, len(ra.RoleDefinitionBindings))
		for _, rd := range ra.RoleDefinitionBindings {
			if rd == nil || rd.Name == "" {
				continue
			}
			levels = append(levels, rd.Name)
		}

		assignments = append(assignments, &sharepoint.RoleAssignment{
			Principal:        principalFromJSON(ra.Member),
			PermissionLevels: levels,
		})
	}
	return assignments, nil
}

func principalFromJSON(p *principalJSON) *sharepoint.Principal {
	return &sharepoint.Principal{
		ID:        int64(p.Id),
		Kind:      sharepoint.KindFromPrincipalType(p.PrincipalType),
		Title:     strings.TrimSpace(p.Title),
		LoginName: p.LoginName,
		Email:     p.Email,
	}
}

// SiteGroups enumerates the site collection's groups.
func (c *Connection) SiteGroups(ctx context.Context) ([]*sharepoint.Principal, error) {
	var normalized []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		res, err := c.sp.Conf(c.conf(ctx)).Web().SiteGroups().Select(PrincipalFields).Get()
		if err != nil {
			return mapStatusError("get site groups", err)
		}
		normalized = res.Normalized()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodePrincipals(normalized, "site groups")
}

// SiteUsers enumerates the site collection's user information list.
func (c *Connection) SiteUsers(ctx context.Context) ([]*sharepoint.Principal, error) {
	var normalized []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		res, err := c.sp.Conf(c.conf(ctx)).Web().SiteUsers().Select(PrincipalFields).Get()
		if err != nil {
			return mapStatusError("get site users", err)
		}
		normalized = res.Normalized()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodePrincipals(normalized, "site users")
}

// SiteGroupMembers returns the direct members of a site group.
func (c *Connection) SiteGroupMembers(ctx context.Context, groupID int64) ([]*sharepoint.Principal, error) {
	var normalized []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		res, err := c.sp.Conf(c.conf(ctx)).Web().SiteGroups().GetByID(int(groupID)).
			Users().Select(PrincipalFields).Get()
		if err != nil {
			return mapStatusError("get site group members", err)
		}
		normalized = res.Normalized()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodePrincipals(normalized, "site group members")
}

func decodePrincipals(data []byte, what string) ([]*sharepoint.Principal, error) {
	var raw []*principalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}

	principals := make([]*sharepoint.Principal, 0, len(raw))
	for _, p := range raw {
		if p == nil {
			continue
		}
		principals = append(principals, principalFromJSON(p))
	}
	return principals, nil
}

// ItemShareDetails reads per-account share metadata through SharePoint's
// sharing API. The typed gosip API does not cover this endpoint, so it goes
// through the raw HTTP client. Missing sharing data is not an error.
func (c *Connection) ItemShareDetails(ctx context.Context, itemGUID string) ([]sharepoint.ShareDetail, error) {
	if c.authClient == nil {
		return nil, nil
	}

	httpClient := api.NewHTTPClient(c.authClient)
	endpoint := fmt.Sprintf(
		"%s/_api/web/GetFileById(guid'%s')/ListItemAllFields/GetSharingInformation?$expand=permissionsInformation",
		c.siteURL, itemGUID,
	)

	var data []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		d, err := httpClient.Post(endpoint, bytes.NewBufferString("{}"), &api.RequestConfig{Context: ctx})
		if err != nil {
			return mapStatusError("get sharing information", err)
		}
		data = d
		return nil
	})
	if err != nil {
		c.logger.Debug("Failed to get sharing info", "item_guid", itemGUID, "error", err.Error())
		return nil, nil
	}

	info, err := decodeSharingInfo(data)
	if err != nil {
		c.logger.Debug("Failed to decode sharing info", "item_guid", itemGUID, "error", err.Error())
		return nil, nil
	}

	var details []sharepoint.ShareDetail
	for _, link := range info.PermissionsInformation.Links.Results {
		ld := link.LinkDetails

		var sharedAt *time.Time
		if ld.Created != "" {
			if t, err := time.Parse(time.RFC3339, ld.Created); err == nil {
				sharedAt = &t
			}
		}
		sharedBy := ""
		if ld.CreatedBy != nil {
			sharedBy = ld.CreatedBy.Name
		}

		for _, m := range link.LinkMembers.Results {
			email := ""
			if m.Email != nil {
				email = *m.Email
			}
			details = append(details, sharepoint.ShareDetail{
				AccountLogin: m.LoginName,
				AccountEmail: email,
				SharedBy:     sharedBy,
				SharedAt:     sharedAt,
			})
		}
	}
	return details, nil
}

// decodeSharingInfo handles both the verbose OData envelope and the plain
// response shape.
func decodeSharingInfo(data []byte) (sharingInfoJSON, error) {
	var envelope struct {
		D sharingInfoJSON `json:"d"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil &&
		len(envelope.D.PermissionsInformation.Links.Results) > 0 {
		return envelope.D, nil
	}
	var info sharingInfoJSON
	if err := json.Unmarshal(data, &info); err != nil {
		return sharingInfoJSON{}, err
	}
	return info, nil
}

// joinURL builds an absolute URL from a web URL and a server-relative path.
func joinURL(webURL, serverRelative string) string {
	if serverRelative == "" {
		return webURL
	}
	u, err := url.Parse(webURL)
	if err != nil {
		return webURL + serverRelative
	}
	u.Path = serverRelative
	return u.String()
}
