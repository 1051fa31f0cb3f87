package spclient

// JSON payload shapes for normalized gosip responses. Field names follow
// the SharePoint REST casing.

type webJSON struct {
	Id          string
	Title       string
	Url         string
	WebTemplate string
}

type listJSON struct {
	Id           string
	Title        string
	Hidden       bool
	ItemCount    int
	BaseTemplate int
	RootFolder   struct{ ServerRelativeUrl string }
}

type principalJSON struct {
	Id            int
	Title         string
	LoginName     string
	PrincipalType int
	Email         string
}

type roleAssignmentJSON struct {
	Member                 *principalJSON
	RoleDefinitionBindings []*struct {
		Id          int
		Name        string
		Description string
	}
}

type roleAssignmentsPayload struct {
	RoleAssignments []*roleAssignmentJSON
}

type itemJSON struct {
	Id                   int
	GUID                 string
	FileSystemObjectType int
	FileLeafRef          string
	FileRef              string
	Title                string
	File                 *struct{ ServerRelativeUrl string }
	Folder               *struct{ ServerRelativeUrl string }
}

// Sharing API response, trimmed to the fields the share-metadata merge
// needs. The endpoint itself is not covered by the typed gosip API.
type sharingInfoJSON struct {
	PermissionsInformation struct {
		Links struct {
			Results []struct {
				LinkDetails struct {
					Created   string
					CreatedBy *struct {
						Name  string
						Email *string
					}
				} `json:"linkDetails"`
				LinkMembers struct {
					Results []struct {
						Name      string
						LoginName string `json:"loginName"`
						Email     *string
					} `json:"results"`
				} `json:"linkMembers"`
			} `json:"results"`
		} `json:"links"`
	} `json:"permissionsInformation"`
}
