// Package model holds the typed entities and the enum/field constraints the
// store itself cannot enforce.
package model

import "time"

type GlobalRole string

const (
	GlobalAdmin     GlobalRole = "admin"
	GlobalManager   GlobalRole = "manager"
	GlobalDeveloper GlobalRole = "developer"
	GlobalViewer    GlobalRole = "viewer"
)

func (r GlobalRole) Valid() bool {
	switch r {
	case GlobalAdmin, GlobalManager, GlobalDeveloper, GlobalViewer:
		return true
	default:
		return false
	}
}

type ProjectRole string

const (
	RoleManager   ProjectRole = "manager"
	RoleDeveloper ProjectRole = "developer"
	RoleViewer    ProjectRole = "viewer"
)

func (r ProjectRole) Valid() bool {
	switch r {
	case RoleManager, RoleDeveloper, RoleViewer:
		return true
	default:
		return false
	}
}

var projectRoleRank = map[ProjectRole]int{
	RoleViewer:    1,
	RoleDeveloper: 2,
	RoleManager:   3,
}

// Meets reports whether r satisfies the fixed ordering
// viewer < developer < manager against the required role. Ownership is
// equivalent to manager and handled by the access policy.
func (r ProjectRole) Meets(required ProjectRole) bool {
	return projectRoleRank[r] >= projectRoleRank[required]
}

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"passwordHash"`
	FullName     string     `json:"fullName"`
	Role         GlobalRole `json:"role"`
	External     bool       `json:"external"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type Member struct {
	UserID   string      `json:"userId"`
	Role     ProjectRole `json:"role"`
	JoinedAt time.Time   `json:"joinedAt"`
}

type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Key         string        `json:"key"`
	Description string        `json:"description"`
	OwnerID     string        `json:"ownerId"`
	Members     []Member      `json:"members"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// MemberRole returns the project-scoped role for userID. The owner is
// reported as manager even if the members list is somehow missing the entry;
// the membership registry re-asserts that invariant on every mutation.
func (p *Project) MemberRole(userID string) (ProjectRole, bool) {
	if userID == p.OwnerID {
		return RoleManager, true
	}
	for _, member := range p.Members {
		if member.UserID == userID {
			return member.Role, true
		}
	}
	return "", false
}

func (p *Project) HasMember(userID string) bool {
	_, ok := p.MemberRole(userID)
	return ok
}

type ItemType string

const (
	ItemTask  ItemType = "task"
	ItemBug   ItemType = "bug"
	ItemStory ItemType = "story"
	ItemEpic  ItemType = "epic"
)

type ItemStatus string

const (
	StatusTodo       ItemStatus = "todo"
	StatusInProgress ItemStatus = "in_progress"
	StatusInReview   ItemStatus = "in_review"
	StatusDone       ItemStatus = "done"
)

type ItemPriority string

const (
	PriorityLow      ItemPriority = "low"
	PriorityMedium   ItemPriority = "medium"
	PriorityHigh     ItemPriority = "high"
	PriorityCritical ItemPriority = "critical"
)

type Item struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"projectId"`
	Key         string       `json:"key"`
	Seq         int          `json:"seq"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Type        ItemType     `json:"type"`
	Status      ItemStatus   `json:"status"`
	Priority    ItemPriority `json:"priority"`
	ReporterID  *string      `json:"reporterId"`
	AssigneeID  *string      `json:"assigneeId"`
	ParentID    *string      `json:"parentId"`
	TagIDs      []string     `json:"tagIds"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func (i *Item) HasTag(tagID string) bool {
	for _, id := range i.TagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}

type Tag struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	UsageCount int       `json:"usageCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"itemId"`
	AuthorID  *string   `json:"authorId"`
	Content   string    `json:"content"`
	Mentions  []string  `json:"mentions"`
	ReadBy    []string  `json:"readBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Comment) ReadByUser(userID string) bool {
	for _, id := range c.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
