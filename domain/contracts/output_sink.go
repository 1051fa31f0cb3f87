package contracts

import (
	"context"

	"sptrace/domain/jobs"
	"sptrace/domain/sharepoint"
)

// SiteContentRow is one row of the site-contents stream: a web, list, or
// item discovered by the tree walker.
type SiteContentRow struct {
	RunID      string
	JobIndex   int
	SiteURL    string
	ObjectType string // "web", "list", or "item"
	Key        string // web ID, list ID, or item GUID; joins the streams
	Title      string
	URL        string
	ItemCount  int
	HasUnique  bool
}

// SitePrincipalRow is one row of the site-groups or site-users stream.
type SitePrincipalRow struct {
	RunID     string
	JobIndex  int
	SiteURL   string
	Principal *sharepoint.Principal
}

// FlaggedNodeRow is one row of the broken-permission-node stream.
type FlaggedNodeRow struct {
	RunID    string
	JobIndex int
	SiteURL  string
	Resource *sharepoint.Resource
}

// AccessRow is one row of the per-principal access stream.
type AccessRow struct {
	RunID    string
	JobIndex int
	SiteURL  string
	Entry    *sharepoint.AccessEntry
}

// OutputSink is the append-only batched row writer for the five logical
// output streams, joined by the resource key and run ID. Implementations
// buffer rows and flush on their own batch cadence; Flush forces buffered
// rows out at level boundaries. Any sink error is fatal to the run.
type OutputSink interface {
	BeginRun(ctx context.Context, run *jobs.ScanRun) error

	AppendSiteContents(ctx context.Context, rows []*SiteContentRow) error
	AppendSiteGroups(ctx context.Context, rows []*SitePrincipalRow) error
	AppendSiteUsers(ctx context.Context, rows []*SitePrincipalRow) error
	AppendFlaggedNodes(ctx context.Context, rows []*FlaggedNodeRow) error
	AppendAccessRows(ctx context.Context, rows []*AccessRow) error

	Flush(ctx context.Context) error
	Close() error
}
