package sharepoint

// Web represents a SharePoint web: either the root web of a site
// collection or a subsite beneath it.
type Web struct {
	ID        string
	URL       string
	Title     string
	Template  string
	HasUnique bool
}

// List represents a SharePoint list or document library
type List struct {
	ID           string
	WebID        string
	Title        string
	URL          string // absolute URL of the list root folder
	BaseTemplate int
	ItemCount    int
	Hidden       bool
	HasUnique    bool
}

// IsEmpty returns true if the list has no items
func (l *List) IsEmpty() bool {
	return l.ItemCount == 0
}

// IsDocumentLibrary returns true if this is a document library (BaseTemplate 101)
func (l *List) IsDocumentLibrary() bool {
	return l.BaseTemplate == BaseTemplateDocumentLibrary
}

// Item represents a SharePoint list item, file, or folder
type Item struct {
	GUID      string // File/Folder UniqueId
	ListID    string
	ID        int // list item integer ID
	URL       string
	Path      string // server-relative path, used for folder-scoped filtering
	Name      string
	IsFile    bool
	IsFolder  bool
	HasUnique bool
}

// GetDisplayName returns a user-friendly name for the item
func (i *Item) GetDisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.GUID
}

// Common list base templates
const (
	BaseTemplateGenericList     = 100
	BaseTemplateDocumentLibrary = 101
	BaseTemplatePictureLibrary  = 109
	BaseTemplateFormLibrary     = 115
	BaseTemplateSitePages       = 119
)

// FileSystemObjectType constants
const (
	FileSystemObjectTypeFile   = 0
	FileSystemObjectTypeFolder = 1
	FileSystemObjectTypeItem   = 2
)
