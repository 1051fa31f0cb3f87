package sink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sptrace/database"
	"sptrace/domain/contracts"
	"sptrace/domain/jobs"
	"sptrace/domain/sharepoint"
	"sptrace/logging"
)

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	cfg := database.Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		BusyTimeoutMs:   5000,
		EnableWAL:       true,
	}
	db, err := database.New(cfg, logging.Default())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *database.Database, table string) int {
	t.Helper()
	var count int
	require.NoError(t, db.Read().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&count))
	return count
}

func contentRow(key string) *contracts.SiteContentRow {
	return &contracts.SiteContentRow{
		RunID:      "run-1",
		JobIndex:   0,
		SiteURL:    "https://contoso.sharepoint.com/sites/A",
		ObjectType: sharepoint.ObjectTypeList,
		Key:        key,
		Title:      "List",
	}
}

func TestFlush_WritesBufferedRowsOnce(t *testing.T) {
	// Arrange
	db := newTestDB(t)
	s := New(db, 100)
	ctx := context.Background()

	require.NoError(t, s.BeginRun(ctx, &jobs.ScanRun{ID: "run-1", StartedAt: time.Now(), JobCount: 1}))
	require.NoError(t, s.AppendSiteContents(ctx, []*contracts.SiteContentRow{
		contentRow("list-1"), contentRow("list-2"),
	}))

	// Nothing hits the database before the batch threshold or a flush.
	assert.Equal(t, 0, countRows(t, db, "site_contents"))

	// Act
	require.NoError(t, s.Flush(ctx))

	// Assert - rows are out and a second flush writes nothing new.
	assert.Equal(t, 2, countRows(t, db, "site_contents"))
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 2, countRows(t, db, "site_contents"))
}

func TestAppend_ReachingBatchSize_AutoFlushes(t *testing.T) {
	// Arrange
	db := newTestDB(t)
	s := New(db, 3)
	ctx := context.Background()

	require.NoError(t, s.BeginRun(ctx, &jobs.ScanRun{ID: "run-1", StartedAt: time.Now(), JobCount: 1}))

	// Act
	require.NoError(t, s.AppendSiteContents(ctx, []*contracts.SiteContentRow{
		contentRow("list-1"), contentRow("list-2"), contentRow("list-3"),
	}))

	// Assert
	assert.Equal(t, 3, countRows(t, db, "site_contents"))
}

func TestFlush_AccessRows_FullProvenancePersisted(t *testing.T) {
	// Arrange
	db := newTestDB(t)
	s := New(db, 100)
	ctx := context.Background()

	sharedAt := time.Date(2026, 5, 12, 9, 30, 0, 0, time.UTC)
	entry := &sharepoint.AccessEntry{
		Resource: &sharepoint.Resource{
			ObjectType: sharepoint.ObjectTypeItem,
			Key:        "item-guid",
			ListID:     "list-1",
			ItemID:     7,
		},
		Account: &sharepoint.Principal{
			Kind: sharepoint.PrincipalUser, Title: "User B", LoginName: "b@contoso.com",
		},
		PermissionLevel: "Contribute",
		AssignmentKind:  sharepoint.AssignmentGroup,
		Resolution:      sharepoint.ResolutionResolved,
		ViaGroup:        "Eng-Leads",
		ParentGroup:     "Engineering",
		NestingLevel:    1,
		SharedAt:        &sharedAt,
		SharedBy:        "Owner O",
	}

	require.NoError(t, s.BeginRun(ctx, &jobs.ScanRun{ID: "run-1", StartedAt: time.Now(), JobCount: 1}))
	require.NoError(t, s.AppendAccessRows(ctx, []*contracts.AccessRow{{
		RunID: "run-1", JobIndex: 0, SiteURL: "https://contoso.sharepoint.com/sites/A", Entry: entry,
	}}))

	// Act
	require.NoError(t, s.Flush(ctx))

	// Assert
	var (
		viaGroup    string
		parentGroup string
		nesting     int
		sharedBy    string
	)
	require.NoError(t, db.Read().QueryRow(`
		SELECT via_group, parent_group, nesting_level, shared_by
		FROM access_rows WHERE object_key = ?`, "item-guid").
		Scan(&viaGroup, &parentGroup, &nesting, &sharedBy))
	assert.Equal(t, "Eng-Leads", viaGroup)
	assert.Equal(t, "Engineering", parentGroup)
	assert.Equal(t, 1, nesting)
	assert.Equal(t, "Owner O", sharedBy)
}
