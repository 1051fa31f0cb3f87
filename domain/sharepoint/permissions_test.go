package sharepoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFromPrincipalType(t *testing.T) {
	tests := []struct {
		name          string
		principalType int
		expected      PrincipalKind
	}{
		{"user", PrincipalTypeUser, PrincipalUser},
		{"security group", PrincipalTypeSecurity, PrincipalSecurityGroup},
		{"distribution list", PrincipalTypeDistribution, PrincipalSecurityGroup},
		{"sharepoint group", PrincipalTypeSharePointGroup, PrincipalSiteGroup},
		{"unknown flag", 16, PrincipalUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindFromPrincipalType(tt.principalType))
		})
	}
}

func TestPrincipalKind_Classification(t *testing.T) {
	assert.True(t, PrincipalSiteGroup.IsGroup())
	assert.True(t, PrincipalSecurityGroup.IsGroup())
	assert.True(t, PrincipalM365Group.IsGroup())
	assert.False(t, PrincipalUser.IsGroup())

	assert.True(t, PrincipalSecurityGroup.IsDirectoryGroup())
	assert.True(t, PrincipalM365Group.IsDirectoryGroup())
	assert.False(t, PrincipalSiteGroup.IsDirectoryGroup())
}

func TestDirectoryObjectID_ClaimsEncodedLogins(t *testing.T) {
	tests := []struct {
		name     string
		login    string
		expected string
	}{
		{
			"security group claim",
			"c:0t.c|tenant|11111111-2222-3333-4444-555555555555",
			"11111111-2222-3333-4444-555555555555",
		},
		{
			"m365 group claim",
			"c:0o.c|federateddirectoryclaimprovider|aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			"aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		},
		{"plain login", "contoso\\user", ""},
		{"trailing pipe", "c:0t.c|tenant|", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Principal{LoginName: tt.login}
			assert.Equal(t, tt.expected, p.DirectoryObjectID())
		})
	}
}

func TestIsSharingLinkGroup(t *testing.T) {
	link := &Principal{
		Kind:  PrincipalSiteGroup,
		Title: "SharingLinks.deadbeef-0000-1111-2222-333333333333.Flexible.44444444-5555-6666-7777-888888888888",
	}
	assert.True(t, link.IsSharingLinkGroup())

	regular := &Principal{Kind: PrincipalSiteGroup, Title: "Site Members"}
	assert.False(t, regular.IsSharingLinkGroup())

	// Only site groups can back sharing links.
	user := &Principal{Kind: PrincipalUser, Title: "SharingLinks.something"}
	assert.False(t, user.IsSharingLinkGroup())
}

func TestResourceShareFor_MatchesLoginOrEmail(t *testing.T) {
	sharedAt := time.Date(2026, 5, 12, 9, 30, 0, 0, time.UTC)
	res := &Resource{
		Shares: []ShareDetail{
			{AccountLogin: "Guest@Fabrikam.com", SharedBy: "Owner O", SharedAt: &sharedAt},
			{AccountEmail: "b@contoso.com", SharedBy: "Owner P"},
		},
	}

	byLogin := res.ShareFor(&Principal{LoginName: "guest@fabrikam.com"})
	require.NotNil(t, byLogin)
	assert.Equal(t, "Owner O", byLogin.SharedBy)

	byEmail := res.ShareFor(&Principal{Email: "B@Contoso.com"})
	require.NotNil(t, byEmail)
	assert.Equal(t, "Owner P", byEmail.SharedBy)

	assert.Nil(t, res.ShareFor(&Principal{LoginName: "nobody@contoso.com"}))
}

func TestResolution_IsPlaceholder(t *testing.T) {
	assert.False(t, ResolutionResolved.IsPlaceholder())
	assert.True(t, ResolutionExcluded.IsPlaceholder())
	assert.True(t, ResolutionDepthCap.IsPlaceholder())
	assert.True(t, ResolutionFailed.IsPlaceholder())
}
