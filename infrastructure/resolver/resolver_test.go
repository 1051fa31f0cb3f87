package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sptrace/domain/contracts"
	"sptrace/domain/scan"
	"sptrace/domain/sharepoint"
	"sptrace/test/mocks"
)

const (
	engLeadsObjectID = "11111111-2222-3333-4444-555555555555"
	nestedObjectID   = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
)

func testParams() *scan.Parameters {
	params := scan.DefaultParameters()
	params.ExcludedAccounts = nil
	return params
}

func siteGroup(id int64, title string) *sharepoint.Principal {
	return &sharepoint.Principal{ID: id, Kind: sharepoint.PrincipalSiteGroup, Title: title}
}

func user(title, login string) *sharepoint.Principal {
	return &sharepoint.Principal{Kind: sharepoint.PrincipalUser, Title: title, LoginName: login}
}

func directoryGroupPrincipal(title, objectID string) *sharepoint.Principal {
	return &sharepoint.Principal{
		Kind:      sharepoint.PrincipalSecurityGroup,
		Title:     title,
		LoginName: "c:0t.c|tenant|" + objectID,
	}
}

func directoryUser(name, upn string) *contracts.DirectoryMember {
	return &contracts.DirectoryMember{
		DisplayName:       name,
		UserPrincipalName: upn,
		Kind:              sharepoint.PrincipalUser,
	}
}

func findAccount(t *testing.T, accounts []*ResolvedAccount, title string) *ResolvedAccount {
	t.Helper()
	for _, a := range accounts {
		if a.Account.Title == title {
			return a
		}
	}
	t.Fatalf("account %q not found in %d resolved accounts", title, len(accounts))
	return nil
}

func TestResolve_SiteGroupWithNestedDirectoryGroup_FullProvenance(t *testing.T) {
	// Arrange - "Engineering" contains user A directly and directory group
	// "Eng-Leads" with users B and C.
	mockConn := &mocks.MockContentConnection{}
	mockDirectory := &mocks.MockDirectoryClient{}

	mockConn.On("SiteGroupMembers", mock.Anything, int64(10)).Return([]*sharepoint.Principal{
		user("User A", "a@contoso.com"),
		directoryGroupPrincipal("Eng-Leads", engLeadsObjectID),
	}, nil)
	mockDirectory.On("GetGroup", mock.Anything, engLeadsObjectID).Return(&contracts.DirectoryGroup{
		ObjectID:    engLeadsObjectID,
		DisplayName: "Eng-Leads",
		Kind:        sharepoint.PrincipalSecurityGroup,
	}, nil)
	mockDirectory.On("GetGroupMembers", mock.Anything, engLeadsObjectID).Return([]*contracts.DirectoryMember{
		directoryUser("User B", "b@contoso.com"),
		directoryUser("User C", "c@contoso.com"),
	}, nil)

	resolver := New(mockDirectory, testParams())
	rc := NewContext(NewDirectoryMemberCache())

	// Act
	accounts, err := resolver.Resolve(context.Background(), mockConn, rc, siteGroup(10, "Engineering"))

	// Assert
	require.NoError(t, err)
	require.Len(t, accounts, 3)

	a := findAccount(t, accounts, "User A")
	assert.Equal(t, 0, a.NestingLevel)
	assert.Equal(t, "Engineering", a.ViaGroup)
	assert.Empty(t, a.ParentGroup)
	assert.Equal(t, sharepoint.ResolutionResolved, a.Resolution)

	for _, title := range []string{"User B", "User C"} {
		acc := findAccount(t, accounts, title)
		assert.Equal(t, 1, acc.NestingLevel)
		assert.Equal(t, "Eng-Leads", acc.ViaGroup)
		assert.Equal(t, "Engineering", acc.ParentGroup)
		assert.Equal(t, sharepoint.ResolutionResolved, acc.Resolution)
	}
}

func TestResolve_RepeatedGroup_SingleDirectoryLookup(t *testing.T) {
	// Arrange - two site groups both nest the same directory group.
	mockConn := &mocks.MockContentConnection{}
	mockDirectory := &mocks.MockDirectoryClient{}

	mockConn.On("SiteGroupMembers", mock.Anything, int64(10)).Return([]*sharepoint.Principal{
		directoryGroupPrincipal("Eng-Leads", engLeadsObjectID),
	}, nil)
	mockConn.On("SiteGroupMembers", mock.Anything, int64(20)).Return([]*sharepoint.Principal{
		directoryGroupPrincipal("Eng-Leads", engLeadsObjectID),
	}, nil)
	mockDirectory.On("GetGroup", mock.Anything, engLeadsObjectID).Return(&contracts.DirectoryGroup{
		ObjectID: engLeadsObjectID, DisplayName: "Eng-Leads", Kind: sharepoint.PrincipalSecurityGroup,
	}, nil)
	mockDirectory.On("GetGroupMembers", mock.Anything, engLeadsObjectID).Return([]*contracts.DirectoryMember{
		directoryUser("User B", "b@contoso.com"),
	}, nil)

	resolver := New(mockDirectory, testParams())
	rc := NewContext(NewDirectoryMemberCache())

	// Act - resolve both groups within the same job context.
	_, err := resolver.Resolve(context.Background(), mockConn, rc, siteGroup(10, "Engineering"))
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), mockConn, rc, siteGroup(20, "Platform"))
	require.NoError(t, err)

	// Assert - the directory was queried exactly once.
	mockDirectory.AssertNumberOfCalls(t, "GetGroupMembers", 1)
	mockDirectory.AssertNumberOfCalls(t, "GetGroup", 1)
}

func TestResolve_DepthCap_EmitsPlaceholderNotSilence(t *testing.T) {
	// Arrange - nesting chain two levels deep with the cap at one.
	params := testParams()
	params.MaxNestingLevel = 1

	mockConn := &mocks.MockContentConnection{}
	mockDirectory := &mocks.MockDirectoryClient{}

	mockConn.On("SiteGroupMembers", mock.Anything, int64(10)).Return([]*sharepoint.Principal{
		directoryGroupPrincipal("Level1", engLeadsObjectID),
	}, nil)
	mockDirectory.On("GetGroup", mock.Anything, engLeadsObjectID).Return(&contracts.DirectoryGroup{
		ObjectID: engLeadsObjectID, DisplayName: "Level1", Kind: sharepoint.PrincipalSecurityGroup,
	}, nil)
	mockDirectory.On("GetGroupMembers", mock.Anything, engLeadsObjectID).Return([]*contracts.DirectoryMember{
		{ObjectID: nestedObjectID, DisplayName: "Level2", Kind: sharepoint.PrincipalSecurityGroup},
	}, nil)

	resolver := New(mockDirectory, params)
	rc := NewContext(NewDirectoryMemberCache())

	// Act
	accounts, err := resolver.Resolve(context.Background(), mockConn, rc, siteGroup(10, "Root"))

	// Assert - Level2 surfaces as a depth-capped placeholder, never expanded.
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, sharepoint.ResolutionDepthCap, accounts[0].Resolution)
	assert.Equal(t, "Level2", accounts[0].Account.Title)
	assert.Equal(t, 2, accounts[0].NestingLevel)
	mockDirectory.AssertNotCalled(t, "GetGroupMembers", mock.Anything, nestedObjectID)

	for _, acc := range accounts {
		assert.LessOrEqual(t, acc.NestingLevel, params.MaxNestingLevel+1)
	}
}

func TestResolve_CyclicDirectoryGroups_Terminates(t *testing.T) {
	// Arrange - two directory groups that contain each other.
	mockConn := &mocks.MockContentConnection{}
	mockDirectory := &mocks.MockDirectoryClient{}

	mockConn.On("SiteGroupMembers", mock.Anything, int64(10)).Return([]*sharepoint.Principal{
		directoryGroupPrincipal("GroupX", engLeadsObjectID),
	}, nil)
	mockDirectory.On("GetGroup", mock.Anything, engLeadsObjectID).Return(&contracts.DirectoryGroup{
		ObjectID: engLeadsObjectID, DisplayName: "GroupX", Kind: sharepoint.PrincipalSecurityGroup,
	}, nil)
	mockDirectory.On("GetGroup", mock.Anything, nestedObjectID).Return(&contracts.DirectoryGroup{
		ObjectID: nestedObjectID, DisplayName: "GroupY", Kind: sharepoint.PrincipalSecurityGroup,
	}, nil)
	mockDirectory.On("GetGroupMembers", mock.Anything, engLeadsObjectID).Return([]*contracts.DirectoryMember{
		directoryUser("User X", "x@contoso.com"),
		{ObjectID: nestedObjectID, DisplayName: "GroupY", Kind: sharepoint.PrincipalSecurityGroup},
	}, nil)
	mockDirectory.On("GetGroupMembers", mock.Anything, nestedObjectID).Return([]*contracts.DirectoryMember{
		directoryUser("User Y", "y@contoso.com"),
		{ObjectID: engLeadsObjectID, DisplayName: "GroupX", Kind: sharepoint.PrincipalSecurityGroup},
	}, nil)

	resolver := New(mockDirectory, testParams())
	rc := NewContext(NewDirectoryMemberCache())

	// Act
	accounts, err := resolver.Resolve(context.Background(), mockConn, rc, siteGroup(10, "Root"))

	// Assert - each user exactly once, each group fetched exactly once.
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	findAccount(t, accounts, "User X")
	findAccount(t, accounts, "User Y")
	mockDirectory.AssertNumberOfCalls(t, "GetGroupMembers", 2)
}

func TestResolve_ExcludedGroup_EmitsPlaceholder(t *testing.T) {
	// Arrange
	params := testParams()
	params.ExcludedGroups = []string{"Everyone except external users"}

	mockConn := &mocks.MockContentConnection{}
	mockDirectory := &mocks.MockDirectoryClient{}

	mockConn.On("SiteGroupMembers", mock.Anything, int64(10)).Return([]*sharepoint.Principal{
		directoryGroupPrincipal("Everyone except external users", engLeadsObjectID),
		user("User A", "a@contoso.com"),
	}, nil)

	resolver := New(mockDirectory, params)
	rc := NewContext(NewDirectoryMemberCache())

	// Act
	accounts, err := resolver.Resolve(context.Background(), mockConn, rc, siteGroup(10, "Members"))

	// Assert - the excluded group is a placeholder, not an expansion and not
	// an omission.
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	placeholder := findAccount(t, accounts, "Everyone except external users")
	assert.Equal(t, sharepoint.ResolutionExcluded, placeholder.Resolution)
	assert.True(t, placeholder.Resolution.IsPlaceholder())
	mockDirectory.AssertNotCalled(t, "GetGroupMembers", mock.Anything, mock.Anything)
}

func TestResolve_MemberLookupFails_EmitsFailedPlaceholder(t *testing.T) {
	// Arrange
	mockConn := &mocks.MockContentConnection{}
	mockDirectory := &mocks.MockDirectoryClient{}

	mockConn.On("SiteGroupMembers", mock.Anything, int64(10)).Return([]*sharepoint.Principal{
		directoryGroupPrincipal("Broken", engLeadsObjectID),
	}, nil)
	mockDirectory.On("GetGroup", mock.Anything, engLeadsObjectID).Return(nil, fmt.Errorf("throttled"))

	resolver := New(mockDirectory, testParams())
	rc := NewContext(NewDirectoryMemberCache())

	// Act
	accounts, err := resolver.Resolve(context.Background(), mockConn, rc, siteGroup(10, "Members"))

	// Assert
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, sharepoint.ResolutionFailed, accounts[0].Resolution)
	assert.Equal(t, "Broken", accounts[0].Account.Title)
}

func TestResolve_ExcludedAccount_Skipped(t *testing.T) {
	// Arrange
	params := testParams()
	params.ExcludedAccounts = []string{"SHAREPOINT\\system"}

	mockConn := &mocks.MockContentConnection{}

	mockConn.On("SiteGroupMembers", mock.Anything, int64(10)).Return([]*sharepoint.Principal{
		user("System Account", "SHAREPOINT\\system"),
		user("User A", "a@contoso.com"),
	}, nil)

	resolver := New(nil, params)
	rc := NewContext(NewDirectoryMemberCache())

	// Act
	accounts, err := resolver.Resolve(context.Background(), mockConn, rc, siteGroup(10, "Members"))

	// Assert - excluded accounts are individuals, not groups: no placeholder.
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "User A", accounts[0].Account.Title)
}

func TestResolve_Idempotent_SameResultAcrossRuns(t *testing.T) {
	// Arrange
	mockConn := &mocks.MockContentConnection{}
	mockDirectory := &mocks.MockDirectoryClient{}

	mockConn.On("SiteGroupMembers", mock.Anything, int64(10)).Return([]*sharepoint.Principal{
		user("User A", "a@contoso.com"),
		directoryGroupPrincipal("Eng-Leads", engLeadsObjectID),
	}, nil)
	mockDirectory.On("GetGroup", mock.Anything, engLeadsObjectID).Return(&contracts.DirectoryGroup{
		ObjectID: engLeadsObjectID, DisplayName: "Eng-Leads", Kind: sharepoint.PrincipalSecurityGroup,
	}, nil)
	mockDirectory.On("GetGroupMembers", mock.Anything, engLeadsObjectID).Return([]*contracts.DirectoryMember{
		directoryUser("User B", "b@contoso.com"),
	}, nil)

	resolver := New(mockDirectory, testParams())

	// Act - fresh context per run, like consecutive jobs against the same site.
	first, err := resolver.Resolve(context.Background(), mockConn, NewContext(NewDirectoryMemberCache()), siteGroup(10, "Engineering"))
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), mockConn, NewContext(NewDirectoryMemberCache()), siteGroup(10, "Engineering"))
	require.NoError(t, err)

	// Assert
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Account.Title, second[i].Account.Title)
		assert.Equal(t, first[i].ViaGroup, second[i].ViaGroup)
		assert.Equal(t, first[i].NestingLevel, second[i].NestingLevel)
	}
}
