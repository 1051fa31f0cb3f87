// Package mocks provides hand-written testify mocks for the domain
// contracts.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"sptrace/domain/contracts"
	"sptrace/domain/jobs"
	"sptrace/domain/sharepoint"
)

// MockContentService implements contracts.ContentService.
type MockContentService struct {
	mock.Mock
}

func (m *MockContentService) Connect(ctx context.Context, siteURL string) (contracts.ContentConnection, error) {
	args := m.Called(ctx, siteURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(contracts.ContentConnection), args.Error(1)
}

// MockContentConnection implements contracts.ContentConnection.
type MockContentConnection struct {
	mock.Mock
}

func (m *MockContentConnection) Web(ctx context.Context) (*sharepoint.Web, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.Web), args.Error(1)
}

func (m *MockContentConnection) Subwebs(ctx context.Context) ([]*sharepoint.Web, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sharepoint.Web), args.Error(1)
}

func (m *MockContentConnection) Lists(ctx context.Context) ([]*sharepoint.List, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sharepoint.List), args.Error(1)
}

func (m *MockContentConnection) ListByRootFolder(ctx context.Context, serverRelativePath string) (*sharepoint.List, error) {
	args := m.Called(ctx, serverRelativePath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.List), args.Error(1)
}

func (m *MockContentConnection) Items(ctx context.Context, listID string, batchSize int, onItem func(*sharepoint.Item) error) error {
	args := m.Called(ctx, listID, batchSize, onItem)
	// Feed configured items through the callback so walk tests can observe
	// filtering.
	if items, ok := args.Get(0).([]*sharepoint.Item); ok {
		for _, item := range items {
			if err := onItem(item); err != nil {
				return err
			}
		}
		return args.Error(1)
	}
	return args.Error(1)
}

func (m *MockContentConnection) HasUniquePermissions(ctx context.Context, target contracts.PermissionTarget) (bool, error) {
	args := m.Called(ctx, target)
	return args.Bool(0), args.Error(1)
}

func (m *MockContentConnection) RoleAssignments(ctx context.Context, target contracts.PermissionTarget) ([]*sharepoint.RoleAssignment, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sharepoint.RoleAssignment), args.Error(1)
}

func (m *MockContentConnection) SiteGroups(ctx context.Context) ([]*sharepoint.Principal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sharepoint.Principal), args.Error(1)
}

func (m *MockContentConnection) SiteUsers(ctx context.Context) ([]*sharepoint.Principal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sharepoint.Principal), args.Error(1)
}

func (m *MockContentConnection) SiteGroupMembers(ctx context.Context, groupID int64) ([]*sharepoint.Principal, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sharepoint.Principal), args.Error(1)
}

func (m *MockContentConnection) ItemShareDetails(ctx context.Context, itemGUID string) ([]sharepoint.ShareDetail, error) {
	args := m.Called(ctx, itemGUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]sharepoint.ShareDetail), args.Error(1)
}

// MockDirectoryClient implements contracts.DirectoryClient.
type MockDirectoryClient struct {
	mock.Mock
}

func (m *MockDirectoryClient) GetGroup(ctx context.Context, objectID string) (*contracts.DirectoryGroup, error) {
	args := m.Called(ctx, objectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*contracts.DirectoryGroup), args.Error(1)
}

func (m *MockDirectoryClient) GetGroupMembers(ctx context.Context, objectID string) ([]*contracts.DirectoryMember, error) {
	args := m.Called(ctx, objectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*contracts.DirectoryMember), args.Error(1)
}

// MockOutputSink implements contracts.OutputSink.
type MockOutputSink struct {
	mock.Mock
}

func (m *MockOutputSink) BeginRun(ctx context.Context, run *jobs.ScanRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockOutputSink) AppendSiteContents(ctx context.Context, rows []*contracts.SiteContentRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockOutputSink) AppendSiteGroups(ctx context.Context, rows []*contracts.SitePrincipalRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockOutputSink) AppendSiteUsers(ctx context.Context, rows []*contracts.SitePrincipalRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockOutputSink) AppendFlaggedNodes(ctx context.Context, rows []*contracts.FlaggedNodeRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockOutputSink) AppendAccessRows(ctx context.Context, rows []*contracts.AccessRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockOutputSink) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockOutputSink) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockCheckpointStore implements contracts.CheckpointStore.
type MockCheckpointStore struct {
	mock.Mock
}

func (m *MockCheckpointStore) SaveRun(ctx context.Context, run *jobs.ScanRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockCheckpointStore) Save(ctx context.Context, cp *jobs.Checkpoint) error {
	args := m.Called(ctx, cp)
	return args.Error(0)
}

func (m *MockCheckpointStore) Load(ctx context.Context, runID string, jobIndex int) (*jobs.Checkpoint, bool, error) {
	args := m.Called(ctx, runID, jobIndex)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*jobs.Checkpoint), args.Bool(1), args.Error(2)
}

func (m *MockCheckpointStore) LatestIncompleteRun(ctx context.Context) (*jobs.ScanRun, bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*jobs.ScanRun), args.Bool(1), args.Error(2)
}

// MockJobSource implements contracts.JobSource.
type MockJobSource struct {
	mock.Mock
}

func (m *MockJobSource) Jobs(ctx context.Context) ([]*jobs.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*jobs.Job), args.Error(1)
}
