// Package mentions extracts @username tokens from comment text and resolves
// them against project membership.
package mentions

import (
	"context"
	"errors"
	"regexp"
	"sort"

	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
)

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// Extract returns the distinct usernames mentioned in text, in first-seen
// order.
func Extract(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	usernames := make([]string, 0, len(matches))
	for _, match := range matches {
		name := match[1]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		usernames = append(usernames, name)
	}
	return usernames
}

type UserLookup interface {
	ByUsername(ctx context.Context, username string) (model.User, error)
}

type Resolver struct {
	users UserLookup
}

func NewResolver(users UserLookup) *Resolver {
	return &Resolver{users: users}
}

// Resolve maps usernames to user ids, keeping only users who are members of
// the project. Unknown usernames and non-members are silently dropped:
// free-text authoring must not fail because someone typed @nobody.
func (r *Resolver) Resolve(ctx context.Context, usernames []string, project *model.Project) ([]string, error) {
	ids := make([]string, 0, len(usernames))
	for _, username := range usernames {
		user, err := r.users.ByUsername(ctx, username)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !project.HasMember(user.ID) {
			continue
		}
		ids = append(ids, user.ID)
	}
	sort.Strings(ids)
	return ids, nil
}
