package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sptrace/domain/contracts"
	"sptrace/domain/jobs"
	"sptrace/domain/scan"
	"sptrace/domain/sharepoint"
	"sptrace/infrastructure/accessor"
	"sptrace/infrastructure/classifier"
	"sptrace/infrastructure/resolver"
	"sptrace/infrastructure/walker"
	"sptrace/test/mocks"
)

const testRunID = "run-1"

func testParams() *scan.Parameters {
	params := scan.DefaultParameters()
	// Lists in these fixtures are empty, so item scanning never fires.
	return params
}

// siteConn builds a connection mock for a site with the given lists and no
// subsites. The parent-path probe for site classification is wired on the
// service mock by the caller.
func siteConn(siteURL string, lists []*sharepoint.List) *mocks.MockContentConnection {
	conn := &mocks.MockContentConnection{}
	conn.On("Web", mock.Anything).Return(&sharepoint.Web{
		ID: "web-" + siteURL, URL: siteURL, Title: "Site",
	}, nil)
	conn.On("Subwebs", mock.Anything).Return([]*sharepoint.Web{}, nil)
	conn.On("Lists", mock.Anything).Return(lists, nil)
	conn.On("SiteGroups", mock.Anything).Return([]*sharepoint.Principal{}, nil)
	conn.On("SiteUsers", mock.Anything).Return([]*sharepoint.Principal{}, nil)
	return conn
}

func makeLists(n int) []*sharepoint.List {
	lists := make([]*sharepoint.List, 0, n)
	for i := 0; i < n; i++ {
		lists = append(lists, &sharepoint.List{
			ID:           fmt.Sprintf("list-%d", i),
			Title:        fmt.Sprintf("List %d", i),
			BaseTemplate: 101,
		})
	}
	return lists
}

// collectingSink records appended rows per stream while accepting everything.
type collectedRows struct {
	sink     *mocks.MockOutputSink
	contents []*contracts.SiteContentRow
}

func newCollectingSink() *collectedRows {
	c := &collectedRows{sink: &mocks.MockOutputSink{}}
	c.sink.On("BeginRun", mock.Anything, mock.Anything).Return(nil)
	c.sink.On("AppendSiteContents", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		c.contents = append(c.contents, args.Get(1).([]*contracts.SiteContentRow)...)
	}).Return(nil)
	c.sink.On("AppendSiteGroups", mock.Anything, mock.Anything).Return(nil)
	c.sink.On("AppendSiteUsers", mock.Anything, mock.Anything).Return(nil)
	c.sink.On("AppendFlaggedNodes", mock.Anything, mock.Anything).Return(nil)
	c.sink.On("AppendAccessRows", mock.Anything, mock.Anything).Return(nil)
	c.sink.On("Flush", mock.Anything).Return(nil)
	return c
}

func (c *collectedRows) listRowsForJob(jobIndex int) []string {
	var keys []string
	for _, row := range c.contents {
		if row.JobIndex == jobIndex && row.ObjectType == sharepoint.ObjectTypeList {
			keys = append(keys, row.Key)
		}
	}
	return keys
}

func (c *collectedRows) webRowCountForJob(jobIndex int) int {
	count := 0
	for _, row := range c.contents {
		if row.JobIndex == jobIndex && row.ObjectType == sharepoint.ObjectTypeWeb {
			count++
		}
	}
	return count
}

func newTestOrchestrator(content contracts.ContentService, sink contracts.OutputSink, store contracts.CheckpointStore, source contracts.JobSource, params *scan.Parameters) *Orchestrator {
	res := resolver.New(nil, params)
	return NewOrchestrator(Dependencies{
		Classifier:  classifier.New(content),
		Walker:      walker.New(content, params),
		Accessor:    accessor.New(res, params),
		Sink:        sink,
		Checkpoints: store,
		JobSource:   source,
		Params:      params,
		Resolution:  resolver.NewContext(resolver.NewDirectoryMemberCache()),
	})
}

func TestRun_ResumeMidJob_NoDuplicateRowsForCompletedLists(t *testing.T) {
	// Arrange - 5 jobs; jobs 0-1 completed, job 2 interrupted with 2 of 4
	// lists done, jobs 3-4 untouched.
	params := testParams()
	tenant := "https://contoso.sharepoint.com"

	jobList := make([]*jobs.Job, 5)
	conns := make([]*mocks.MockContentConnection, 5)
	mockService := &mocks.MockContentService{}
	mockService.On("Connect", mock.Anything, tenant+"/sites").Return(nil, contracts.ErrNotFound)
	for i := range jobList {
		siteURL := fmt.Sprintf("%s/sites/s%d", tenant, i)
		jobList[i] = &jobs.Job{Index: i, URL: siteURL}
		conns[i] = siteConn(siteURL, makeLists(4))
		mockService.On("Connect", mock.Anything, siteURL).Return(conns[i], nil)
	}

	mockSource := &mocks.MockJobSource{}
	mockSource.On("Jobs", mock.Anything).Return(jobList, nil)

	run := &jobs.ScanRun{ID: testRunID, StartedAt: time.Now(), JobCount: 5}
	store := &mocks.MockCheckpointStore{}
	store.On("LatestIncompleteRun", mock.Anything).Return(run, true, nil)
	for i := 0; i <= 1; i++ {
		store.On("Load", mock.Anything, testRunID, i).Return(&jobs.Checkpoint{
			RunID: testRunID, JobIndex: i, Status: jobs.JobStatusCompleted,
		}, true, nil)
	}
	store.On("Load", mock.Anything, testRunID, 2).Return(&jobs.Checkpoint{
		RunID:         testRunID,
		JobIndex:      2,
		JobURL:        jobList[2].URL,
		Status:        jobs.JobStatusRunning,
		LastWebIndex:  0,
		LastListIndex: 1,
		LastItemIndex: -1,
	}, true, nil)
	store.On("Load", mock.Anything, testRunID, 3).Return(nil, false, nil)
	store.On("Load", mock.Anything, testRunID, 4).Return(nil, false, nil)
	store.On("Save", mock.Anything, mock.Anything).Return(nil)

	collected := newCollectingSink()

	orchestrator := newTestOrchestrator(mockService, collected.sink, store, mockSource, params)

	// Act
	err := orchestrator.Run(context.Background(), true)

	// Assert - job 2 re-emits only lists 3 and 4, fresh jobs emit all four.
	require.NoError(t, err)
	assert.Equal(t, []string{"list-2", "list-3"}, collected.listRowsForJob(2))
	assert.Equal(t, []string{"list-0", "list-1", "list-2", "list-3"}, collected.listRowsForJob(3))
	assert.Equal(t, []string{"list-0", "list-1", "list-2", "list-3"}, collected.listRowsForJob(4))

	// Web-level rows and the site principal inventory went out before the
	// interruption; the resumed job must not emit them again.
	assert.Equal(t, 0, collected.webRowCountForJob(2))
	assert.Equal(t, 1, collected.webRowCountForJob(3))
	conns[2].AssertNotCalled(t, "SiteGroups", mock.Anything)
	conns[2].AssertNotCalled(t, "SiteUsers", mock.Anything)
	conns[3].AssertCalled(t, "SiteGroups", mock.Anything)

	// Terminal jobs were never re-classified.
	mockService.AssertNotCalled(t, "Connect", mock.Anything, jobList[0].URL)
	mockService.AssertNotCalled(t, "Connect", mock.Anything, jobList[1].URL)
}

func TestRun_ClassificationError_SkipsJobAndContinues(t *testing.T) {
	// Arrange - first job URL is unmappable, second is a healthy site.
	params := testParams()
	tenant := "https://contoso.sharepoint.com"
	badURL := tenant + "/sites/gone"
	goodURL := tenant + "/sites/ok"

	mockService := &mocks.MockContentService{}
	mockService.On("Connect", mock.Anything, badURL).Return(nil, contracts.ErrNotFound)
	mockService.On("Connect", mock.Anything, tenant+"/sites").Return(nil, contracts.ErrNotFound)
	mockService.On("Connect", mock.Anything, goodURL).Return(siteConn(goodURL, makeLists(1)), nil)

	mockSource := &mocks.MockJobSource{}
	mockSource.On("Jobs", mock.Anything).Return([]*jobs.Job{
		{Index: 0, URL: badURL},
		{Index: 1, URL: goodURL},
	}, nil)

	var savedStatuses []jobs.JobStatus
	store := &mocks.MockCheckpointStore{}
	store.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	store.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(nil, false, nil)
	store.On("Save", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		cp := args.Get(1).(*jobs.Checkpoint)
		savedStatuses = append(savedStatuses, cp.Status)
	}).Return(nil)

	collected := newCollectingSink()

	orchestrator := newTestOrchestrator(mockService, collected.sink, store, mockSource, params)

	// Act
	err := orchestrator.Run(context.Background(), false)

	// Assert - the bad job is skipped, the good one still completes.
	require.NoError(t, err)
	assert.Contains(t, savedStatuses, jobs.JobStatusSkipped)
	assert.Contains(t, savedStatuses, jobs.JobStatusCompleted)
	assert.Equal(t, []string{"list-0"}, collected.listRowsForJob(1))
}

func TestRun_SinkFailure_AbortsRun(t *testing.T) {
	// Arrange - the sink rejects writes; partial output is worse than
	// stopping.
	params := testParams()
	tenant := "https://contoso.sharepoint.com"
	siteURL := tenant + "/sites/s0"

	mockService := &mocks.MockContentService{}
	mockService.On("Connect", mock.Anything, tenant+"/sites").Return(nil, contracts.ErrNotFound)
	mockService.On("Connect", mock.Anything, siteURL).Return(siteConn(siteURL, makeLists(1)), nil)

	mockSource := &mocks.MockJobSource{}
	mockSource.On("Jobs", mock.Anything).Return([]*jobs.Job{{Index: 0, URL: siteURL}}, nil)

	store := &mocks.MockCheckpointStore{}
	store.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	store.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(nil, false, nil)
	store.On("Save", mock.Anything, mock.Anything).Return(nil)

	mockSink := &mocks.MockOutputSink{}
	mockSink.On("BeginRun", mock.Anything, mock.Anything).Return(nil)
	mockSink.On("AppendSiteGroups", mock.Anything, mock.Anything).Return(nil)
	mockSink.On("AppendSiteUsers", mock.Anything, mock.Anything).Return(nil)
	mockSink.On("AppendSiteContents", mock.Anything, mock.Anything).Return(fmt.Errorf("disk full"))

	orchestrator := newTestOrchestrator(mockService, mockSink, store, mockSource, params)

	// Act
	err := orchestrator.Run(context.Background(), false)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
