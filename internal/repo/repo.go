// Package repo provides typed CRUD accessors over the docstore collections.
// Repositories enforce schema-level concerns only (shape, id discipline);
// cross-entity invariants belong to the registry, coordinator and generator.
package repo

import "tracker/api/internal/docstore"

const (
	CollectionUsers    = "users"
	CollectionProjects = "projects"
	CollectionItems    = "items"
	CollectionTags     = "tags"
	CollectionComments = "comments"
)

// CollectionNames lists every collection the backends must provision.
func CollectionNames() []string {
	return []string{
		CollectionUsers,
		CollectionProjects,
		CollectionItems,
		CollectionTags,
		CollectionComments,
	}
}

type Repos struct {
	Users    *Users
	Projects *Projects
	Items    *Items
	Tags     *Tags
	Comments *Comments
}

func New(store docstore.Store) *Repos {
	return &Repos{
		Users:    &Users{coll: store.Collection(CollectionUsers)},
		Projects: &Projects{coll: store.Collection(CollectionProjects)},
		Items:    &Items{coll: store.Collection(CollectionItems)},
		Tags:     &Tags{coll: store.Collection(CollectionTags)},
		Comments: &Comments{coll: store.Collection(CollectionComments)},
	}
}
