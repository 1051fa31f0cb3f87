// Package walker enumerates the content tree in scope for a classified job:
// webs (optionally the whole subsite subtree), lists filtered by an explicit
// allow-map of base templates, and items. Nodes with independently defined
// access control are the walker's product; everything else is inventory.
package walker

import (
	"context"
	"fmt"
	"strings"

	"sptrace/domain/contracts"
	"sptrace/domain/scan"
	"sptrace/domain/sharepoint"
	"sptrace/infrastructure/classifier"
	"sptrace/logging"
)

// Built-in system lists never scanned unless explicitly allow-listed by
// name. These exist on practically every site and only add noise. Site Pages
// is deliberately absent: it is the one template-119 library and the
// allow-map puts that template in scope.
var systemListTitles = map[string]bool{
	"master page gallery":       true,
	"style library":             true,
	"form templates":            true,
	"site assets":               true,
	"appdata":                   true,
	"composed looks":            true,
	"converted forms":           true,
	"list template gallery":     true,
	"solution gallery":          true,
	"theme gallery":             true,
	"user information list":     true,
	"web part gallery":          true,
	"sharing links":             true,
	"taxonomyhiddenlist":        true,
	"web template extensions":   true,
	"preservation hold library": true,
}

// WebScope is one web in scope with its own connection. Subwebs need their
// own connection because the content client binds auth to a single web URL.
type WebScope struct {
	Conn contracts.ContentConnection
	Web  *sharepoint.Web
}

// Walker expands a classification into webs, lists, and items in scope.
type Walker struct {
	content contracts.ContentService
	params  *scan.Parameters
	logger  *logging.Logger
}

// New creates a walker over the given content service and scan parameters.
func New(content contracts.ContentService, params *scan.Parameters) *Walker {
	return &Walker{
		content: content,
		params:  params,
		logger:  logging.Default().WithComponent("walker"),
	}
}

// Webs returns the webs in scope for a classification, in breadth-first
// order starting at the classified web. Subsites are included only for
// site/subsite inputs with subsite walking enabled; webs on the subsite
// exclusion list are kept but treated as leaves.
func (w *Walker) Webs(ctx context.Context, cls *classifier.Classification) ([]*WebScope, error) {
	if cls.Connection == nil || cls.Web == nil {
		return nil, fmt.Errorf("classification has no connection")
	}

	root := &WebScope{Conn: cls.Connection, Web: cls.Web}
	if cls.Kind == classifier.KindLibrary || cls.Kind == classifier.KindFolder {
		return []*WebScope{root}, nil
	}
	if !w.params.IncludeSubsites {
		return []*WebScope{root}, nil
	}

	scopes := []*WebScope{root}
	queue := []*WebScope{root}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("subsite walk canceled: %w", err)
		}

		current := queue[0]
		queue = queue[1:]

		if w.isSubsiteExcluded(current.Web) {
			w.logger.Debug("Subsite on exclusion list, not descending",
				"web_url", current.Web.URL)
			continue
		}

		subwebs, err := current.Conn.Subwebs(ctx)
		if err != nil {
			return nil, fmt.Errorf("enumerate subwebs of %s: %w", current.Web.URL, err)
		}

		for _, sw := range subwebs {
			conn, err := w.content.Connect(ctx, sw.URL)
			if err != nil {
				w.logger.Warn("Failed to connect to subweb, skipping subtree",
					"web_url", sw.URL, "error", err.Error())
				continue
			}
			web, err := conn.Web(ctx)
			if err != nil {
				w.logger.Warn("Failed to read subweb, skipping subtree",
					"web_url", sw.URL, "error", err.Error())
				continue
			}
			scope := &WebScope{Conn: conn, Web: web}
			scopes = append(scopes, scope)
			queue = append(queue, scope)
		}
	}

	return scopes, nil
}

// Lists returns the lists in scope for one web. For library and folder
// inputs the scope is exactly the classified list; otherwise the web's lists
// filtered through the allow-map and system exclusions.
func (w *Walker) Lists(ctx context.Context, ws *WebScope, cls *classifier.Classification) ([]*sharepoint.List, error) {
	if cls.Kind == classifier.KindLibrary || cls.Kind == classifier.KindFolder {
		return []*sharepoint.List{cls.List}, nil
	}

	all, err := ws.Conn.Lists(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate lists of %s: %w", ws.Web.URL, err)
	}

	lists := make([]*sharepoint.List, 0, len(all))
	for _, l := range all {
		if !w.shouldScanList(l) {
			continue
		}
		lists = append(lists, l)
	}
	return lists, nil
}

// shouldScanList applies the hidden flag, the base-template allow-map, and
// the system-list exclusions. An explicit allow-by-name wins over all of
// them.
func (w *Walker) shouldScanList(l *sharepoint.List) bool {
	for _, name := range w.params.ListAllowNames {
		if strings.EqualFold(name, l.Title) {
			return true
		}
	}
	if w.params.SkipHidden && l.Hidden {
		return false
	}
	if !w.params.AllowsBaseTemplate(l.BaseTemplate) {
		return false
	}
	if systemListTitles[strings.ToLower(l.Title)] {
		return false
	}
	return true
}

// Items walks a list's items, applying the folder prefix filter for folder
// inputs, and invokes onItem for each item in scope. The item callback's
// error aborts the walk.
func (w *Walker) Items(ctx context.Context, ws *WebScope, list *sharepoint.List, cls *classifier.Classification, onItem func(*sharepoint.Item) error) error {
	folderPrefix := ""
	if cls.Kind == classifier.KindFolder && cls.List != nil && cls.List.ID == list.ID {
		folderPrefix = strings.TrimRight(cls.FolderPath, "/") + "/"
	}

	return ws.Conn.Items(ctx, list.ID, w.params.GetEffectiveBatchSize(), func(item *sharepoint.Item) error {
		if folderPrefix != "" && !strings.HasPrefix(strings.ToLower(item.Path+"/"), strings.ToLower(folderPrefix)) {
			return nil
		}
		return onItem(item)
	})
}

func (w *Walker) isSubsiteExcluded(web *sharepoint.Web) bool {
	for _, excluded := range w.params.SubsiteExcludeList {
		if strings.EqualFold(excluded, web.URL) || strings.EqualFold(excluded, web.Title) {
			return true
		}
	}
	return false
}
