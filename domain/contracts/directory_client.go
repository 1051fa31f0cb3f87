package contracts

import (
	"context"

	"sptrace/domain/sharepoint"
)

// DirectoryGroup is a tenant-global group fetched from the directory
// service by its opaque object ID.
type DirectoryGroup struct {
	ObjectID    string
	DisplayName string
	Mail        string
	Kind        sharepoint.PrincipalKind // PrincipalSecurityGroup or PrincipalM365Group
}

// DirectoryMember is one direct member of a directory group. Kind is typed
// from the service response, never inferred from identity-string shape.
type DirectoryMember struct {
	ObjectID          string
	DisplayName       string
	Email             string
	UserPrincipalName string
	Kind              sharepoint.PrincipalKind // PrincipalUser or a directory group kind
}

// DirectoryClient fetches group properties and typed member lists from the
// external directory.
type DirectoryClient interface {
	GetGroup(ctx context.Context, objectID string) (*DirectoryGroup, error)
	GetGroupMembers(ctx context.Context, objectID string) ([]*DirectoryMember, error)
}
