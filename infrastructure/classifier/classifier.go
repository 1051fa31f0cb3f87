// Package classifier maps arbitrary input URLs onto the content hierarchy.
// A job URL may point at a site collection, a subsite, a library root, or a
// folder inside a library; the walker needs to know which before it can
// scope the traversal.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"sptrace/domain/contracts"
	"sptrace/domain/sharepoint"
	"sptrace/logging"
)

// ResourceKind is the classified shape of an input URL.
type ResourceKind string

const (
	KindSite    ResourceKind = "site"
	KindSubsite ResourceKind = "subsite"
	KindLibrary ResourceKind = "library"
	KindFolder  ResourceKind = "folder"
	KindError   ResourceKind = "error"
)

// Classification is the result of classifying one input URL. For Library
// and Folder the connection is scoped to the owning web and List identifies
// the single list in scope; FolderPath is the server-relative folder prefix
// for Folder results.
type Classification struct {
	Kind       ResourceKind
	InputURL   string
	SiteURL    string
	Connection contracts.ContentConnection
	Web        *sharepoint.Web
	List       *sharepoint.List
	FolderPath string
	Err        error
}

// Classifier probes the content service to classify input URLs.
type Classifier struct {
	content contracts.ContentService
	logger  *logging.Logger
}

// New creates a classifier over the given content service.
func New(content contracts.ContentService) *Classifier {
	return &Classifier{
		content: content,
		logger:  logging.Default().WithComponent("classifier"),
	}
}

// Classify maps inputURL to a resource kind with an open connection to the
// owning web. Authorization failures, not-found results, and unmappable
// paths all collapse to KindError with Err set; classification errors skip
// the job, they never abort the batch.
func (c *Classifier) Classify(ctx context.Context, inputURL string) *Classification {
	normalized, err := normalizeURL(inputURL)
	if err != nil {
		return c.errorResult(inputURL, fmt.Errorf("malformed url: %w", err))
	}

	// Direct connection first. A URL that resolves to a web root is a site
	// or subsite; anything else has to be ascended.
	conn, err := c.content.Connect(ctx, normalized)
	if err == nil {
		web, werr := conn.Web(ctx)
		if werr != nil {
			return c.errorResult(inputURL, werr)
		}
		if sameURL(web.URL, normalized) {
			return c.classifyWeb(ctx, inputURL, normalized, conn, web)
		}
		// The service redirected us to an enclosing web, so the path tail is
		// inside that web.
		return c.classifyWithinWeb(ctx, inputURL, normalized, conn, web)
	}
	if errors.Is(err, contracts.ErrUnauthorized) {
		return c.errorResult(inputURL, err)
	}

	// Probe the parent chain upward until a path prefix connects as a web.
	return c.ascend(ctx, inputURL, normalized)
}

// classifyWeb distinguishes a site collection root from a subsite. A web is
// a subsite exactly when its parent path is also a web and lists it among
// its immediate child webs; a site collection root is never a child web of
// the path above it.
func (c *Classifier) classifyWeb(ctx context.Context, inputURL, normalized string, conn contracts.ContentConnection, web *sharepoint.Web) *Classification {
	kind := KindSite

	parent := parentPath(normalized)
	if parent != "" {
		parentConn, err := c.content.Connect(ctx, parent)
		if err == nil {
			subwebs, err := parentConn.Subwebs(ctx)
			if err == nil {
				for _, sw := range subwebs {
					if sameURL(sw.URL, normalized) {
						kind = KindSubsite
						break
					}
				}
			}
		}
	}

	return &Classification{
		Kind:       kind,
		InputURL:   inputURL,
		SiteURL:    web.URL,
		Connection: conn,
		Web:        web,
	}
}

// ascend walks the parent-folder chain upward until a prefix connects as a
// web, then classifies the remaining path tail inside that web.
func (c *Classifier) ascend(ctx context.Context, inputURL, normalized string) *Classification {
	for probe := parentPath(normalized); probe != ""; probe = parentPath(probe) {
		conn, err := c.content.Connect(ctx, probe)
		if err != nil {
			if errors.Is(err, contracts.ErrUnauthorized) {
				return c.errorResult(inputURL, err)
			}
			continue
		}

		web, err := conn.Web(ctx)
		if err != nil {
			return c.errorResult(inputURL, err)
		}
		if !sameURL(web.URL, probe) {
			continue
		}

		return c.classifyWithinWeb(ctx, inputURL, normalized, conn, web)
	}

	return c.errorResult(inputURL, fmt.Errorf("no web found on parent chain: %w", contracts.ErrNotFound))
}

// classifyWithinWeb resolves the path tail below a connected web to a
// library root or a folder inside one.
func (c *Classifier) classifyWithinWeb(ctx context.Context, inputURL, normalized string, conn contracts.ContentConnection, web *sharepoint.Web) *Classification {
	webPath := serverRelativePath(web.URL)
	fullPath := serverRelativePath(normalized)

	tail := strings.TrimPrefix(fullPath, webPath)
	tail = strings.Trim(tail, "/")
	if tail == "" {
		return c.errorResult(inputURL, fmt.Errorf("path resolves to web root but urls differ: %w", contracts.ErrNotFound))
	}

	segments := strings.Split(tail, "/")
	listRoot := webPath + "/" + segments[0]

	list, err := conn.ListByRootFolder(ctx, listRoot)
	if err != nil {
		return c.errorResult(inputURL, fmt.Errorf("resolve list at %q: %w", listRoot, err))
	}

	if len(segments) == 1 {
		return &Classification{
			Kind:       KindLibrary,
			InputURL:   inputURL,
			SiteURL:    web.URL,
			Connection: conn,
			Web:        web,
			List:       list,
		}
	}

	return &Classification{
		Kind:       KindFolder,
		InputURL:   inputURL,
		SiteURL:    web.URL,
		Connection: conn,
		Web:        web,
		List:       list,
		FolderPath: fullPath,
	}
}

func (c *Classifier) errorResult(inputURL string, err error) *Classification {
	c.logger.Warn("URL classification failed", "url", inputURL, "error", err.Error())
	return &Classification{
		Kind:     KindError,
		InputURL: inputURL,
		Err:      err,
	}
}

// normalizeURL decodes percent-encoding and strips the trailing slash so
// path comparisons are stable.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	path := u.EscapedPath()
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	path = strings.TrimRight(path, "/")

	return u.Scheme + "://" + u.Host + path, nil
}

// parentPath strips the last path segment; returns "" at the host root.
func parentPath(normalized string) string {
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return ""
	}
	return u.Scheme + "://" + u.Host + path[:idx]
}

// serverRelativePath extracts the decoded path portion of an absolute URL.
func serverRelativePath(absolute string) string {
	u, err := url.Parse(absolute)
	if err != nil {
		return absolute
	}
	return strings.TrimRight(u.Path, "/")
}

func sameURL(a, b string) bool {
	na, err := normalizeURL(a)
	if err != nil {
		return false
	}
	nb, err := normalizeURL(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(na, nb)
}
