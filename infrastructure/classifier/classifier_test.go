package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sptrace/domain/contracts"
	"sptrace/domain/sharepoint"
	"sptrace/test/mocks"
)

const tenantRoot = "https://contoso.sharepoint.com"

func webConn(webURL string) *mocks.MockContentConnection {
	conn := &mocks.MockContentConnection{}
	conn.On("Web", mock.Anything).Return(&sharepoint.Web{
		ID:    "web-" + webURL,
		URL:   webURL,
		Title: "Web",
	}, nil)
	return conn
}

func TestClassify_SiteCollectionRoot_Site(t *testing.T) {
	// Arrange - the URL connects as a web and its parent path is not a web.
	siteURL := tenantRoot + "/sites/A"
	mockService := &mocks.MockContentService{}
	mockService.On("Connect", mock.Anything, siteURL).Return(webConn(siteURL), nil)
	mockService.On("Connect", mock.Anything, tenantRoot+"/sites").Return(nil, contracts.ErrNotFound)

	// Act
	result := New(mockService).Classify(context.Background(), siteURL)

	// Assert
	assert.Equal(t, KindSite, result.Kind)
	assert.Equal(t, siteURL, result.SiteURL)
	require.NotNil(t, result.Web)
}

func TestClassify_ChildWebOfParent_Subsite(t *testing.T) {
	// Arrange - the parent web lists the URL among its immediate subwebs.
	siteURL := tenantRoot + "/sites/A"
	subURL := siteURL + "/B"

	parentConn := webConn(siteURL)
	parentConn.On("Subwebs", mock.Anything).Return([]*sharepoint.Web{
		{ID: "web-b", URL: subURL, Title: "B"},
	}, nil)

	mockService := &mocks.MockContentService{}
	mockService.On("Connect", mock.Anything, subURL).Return(webConn(subURL), nil)
	mockService.On("Connect", mock.Anything, siteURL).Return(parentConn, nil)

	// Act
	result := New(mockService).Classify(context.Background(), subURL)

	// Assert
	assert.Equal(t, KindSubsite, result.Kind)
	assert.Equal(t, subURL, result.SiteURL)
}

func TestClassify_ListRootBelowWeb_Library(t *testing.T) {
	// Arrange - the full path is not a web; its parent is, and the first
	// remaining segment resolves to a list root folder.
	siteURL := tenantRoot + "/sites/A"
	libraryURL := siteURL + "/Shared Documents"

	conn := webConn(siteURL)
	conn.On("ListByRootFolder", mock.Anything, "/sites/A/Shared Documents").Return(&sharepoint.List{
		ID:    "list-1",
		Title: "Shared Documents",
		URL:   libraryURL,
	}, nil)

	mockService := &mocks.MockContentService{}
	mockService.On("Connect", mock.Anything, libraryURL).Return(nil, contracts.ErrNotFound)
	mockService.On("Connect", mock.Anything, siteURL).Return(conn, nil)

	// Act
	result := New(mockService).Classify(context.Background(), libraryURL)

	// Assert
	assert.Equal(t, KindLibrary, result.Kind)
	assert.Equal(t, siteURL, result.SiteURL)
	require.NotNil(t, result.List)
	assert.Equal(t, "list-1", result.List.ID)
	assert.Empty(t, result.FolderPath)
}

func TestClassify_PathInsideLibrary_Folder(t *testing.T) {
	// Arrange
	siteURL := tenantRoot + "/sites/A"
	folderURL := siteURL + "/Shared Documents/Sub"

	conn := webConn(siteURL)
	conn.On("ListByRootFolder", mock.Anything, "/sites/A/Shared Documents").Return(&sharepoint.List{
		ID:    "list-1",
		Title: "Shared Documents",
	}, nil)

	mockService := &mocks.MockContentService{}
	mockService.On("Connect", mock.Anything, folderURL).Return(nil, contracts.ErrNotFound)
	mockService.On("Connect", mock.Anything, siteURL+"/Shared Documents").Return(nil, contracts.ErrNotFound)
	mockService.On("Connect", mock.Anything, siteURL).Return(conn, nil)

	// Act
	result := New(mockService).Classify(context.Background(), folderURL)

	// Assert
	assert.Equal(t, KindFolder, result.Kind)
	require.NotNil(t, result.List)
	assert.Equal(t, "/sites/A/Shared Documents/Sub", result.FolderPath)
}

func TestClassify_NothingOnParentChain_Error(t *testing.T) {
	// Arrange - no prefix of the path connects as a web.
	badURL := tenantRoot + "/sites/DoesNotExist"
	mockService := &mocks.MockContentService{}
	mockService.On("Connect", mock.Anything, mock.Anything).Return(nil, contracts.ErrNotFound)

	// Act
	result := New(mockService).Classify(context.Background(), badURL)

	// Assert
	assert.Equal(t, KindError, result.Kind)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, contracts.ErrNotFound)
}

func TestClassify_Unauthorized_ErrorWithoutAscending(t *testing.T) {
	// Arrange - an authorization failure is an answer, not a miss.
	deniedURL := tenantRoot + "/sites/Secret"
	mockService := &mocks.MockContentService{}
	mockService.On("Connect", mock.Anything, deniedURL).Return(nil, contracts.ErrUnauthorized)

	// Act
	result := New(mockService).Classify(context.Background(), deniedURL)

	// Assert
	assert.Equal(t, KindError, result.Kind)
	assert.ErrorIs(t, result.Err, contracts.ErrUnauthorized)
	mockService.AssertNumberOfCalls(t, "Connect", 1)
}

func TestClassify_MalformedURL_Error(t *testing.T) {
	result := New(&mocks.MockContentService{}).Classify(context.Background(), "not a url")

	assert.Equal(t, KindError, result.Kind)
	require.Error(t, result.Err)
}

func TestClassify_PercentEncodedAndTrailingSlash_Normalized(t *testing.T) {
	// Arrange - encoded spaces and a trailing slash still classify as the
	// same library.
	siteURL := tenantRoot + "/sites/A"
	rawURL := siteURL + "/Shared%20Documents/"

	conn := webConn(siteURL)
	conn.On("ListByRootFolder", mock.Anything, "/sites/A/Shared Documents").Return(&sharepoint.List{
		ID: "list-1",
	}, nil)

	mockService := &mocks.MockContentService{}
	mockService.On("Connect", mock.Anything, siteURL+"/Shared Documents").Return(nil, contracts.ErrNotFound)
	mockService.On("Connect", mock.Anything, siteURL).Return(conn, nil)

	// Act
	result := New(mockService).Classify(context.Background(), rawURL)

	// Assert
	assert.Equal(t, KindLibrary, result.Kind)
}
