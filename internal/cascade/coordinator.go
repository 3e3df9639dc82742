// Package cascade orchestrates multi-entity deletion and the tag usage
// counters. The store has no transactions, so every sequence here is ordered
// so that a partial failure can be retried: dependents go first, the parent
// record goes last, and each step is idempotent. A step failing after
// earlier steps have committed is logged as an inconsistency for operator
// attention; there is no rollback.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"tracker/api/internal/apperr"
	"tracker/api/internal/docstore"
	"tracker/api/internal/membership"
	"tracker/api/internal/model"
	"tracker/api/internal/repo"
)

type Coordinator struct {
	repos    *repo.Repos
	registry *membership.Registry
}

func NewCoordinator(repos *repo.Repos, registry *membership.Registry) *Coordinator {
	return &Coordinator{repos: repos, registry: registry}
}

// DeleteProject removes the project and everything under it: comments of its
// items, the items, the tags, then the project record itself. The project
// record going last means an interrupted run never resurrects a project.
func (c *Coordinator) DeleteProject(ctx context.Context, projectID string) error {
	items, err := c.repos.Items.ListByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list project items: %w", err)
	}

	for _, item := range items {
		comments, err := c.repos.Comments.ListByItem(ctx, item.ID)
		if err != nil {
			return c.inconsistent("delete project", projectID, fmt.Errorf("list comments of item %s: %w", item.ID, err))
		}
		for _, comment := range comments {
			if err := c.repos.Comments.Remove(ctx, comment.ID); err != nil {
				return c.inconsistent("delete project", projectID, fmt.Errorf("remove comment %s: %w", comment.ID, err))
			}
		}
	}

	for _, item := range items {
		if err := c.repos.Items.Remove(ctx, item.ID); err != nil {
			return c.inconsistent("delete project", projectID, fmt.Errorf("remove item %s: %w", item.ID, err))
		}
	}

	tags, err := c.repos.Tags.ListByProject(ctx, projectID)
	if err != nil {
		return c.inconsistent("delete project", projectID, fmt.Errorf("list project tags: %w", err))
	}
	for _, tag := range tags {
		if err := c.repos.Tags.Remove(ctx, tag.ID); err != nil {
			return c.inconsistent("delete project", projectID, fmt.Errorf("remove tag %s: %w", tag.ID, err))
		}
	}

	if err := c.repos.Projects.Remove(ctx, projectID); err != nil {
		return c.inconsistent("delete project", projectID, fmt.Errorf("remove project: %w", err))
	}
	return nil
}

// DeleteItem removes one item with its comments and releases its tag
// references.
func (c *Coordinator) DeleteItem(ctx context.Context, item model.Item) error {
	comments, err := c.repos.Comments.ListByItem(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("list item comments: %w", err)
	}
	for _, comment := range comments {
		if err := c.repos.Comments.Remove(ctx, comment.ID); err != nil {
			return c.inconsistent("delete item", item.ID, fmt.Errorf("remove comment %s: %w", comment.ID, err))
		}
	}
	if err := c.adjustTagUsage(ctx, item.TagIDs, nil); err != nil {
		return c.inconsistent("delete item", item.ID, err)
	}
	if err := c.repos.Items.Remove(ctx, item.ID); err != nil {
		return c.inconsistent("delete item", item.ID, fmt.Errorf("remove item: %w", err))
	}
	return nil
}

// DeleteTag removes a tag. A tag still referenced by items is a Conflict
// unless force is set, in which case the reference is pulled from every item
// first.
func (c *Coordinator) DeleteTag(ctx context.Context, tagID string, force bool) error {
	tag, err := c.repos.Tags.ByID(ctx, tagID)
	if errors.Is(err, docstore.ErrNotFound) {
		return apperr.NotFound("tag not found")
	}
	if err != nil {
		return err
	}

	if tag.UsageCount > 0 && !force {
		return apperr.Conflict("tag is in use")
	}

	if force {
		items, err := c.repos.Items.ListByTag(ctx, tag.ProjectID, tagID)
		if err != nil {
			return fmt.Errorf("list items by tag: %w", err)
		}
		for _, item := range items {
			kept := make([]string, 0, len(item.TagIDs))
			for _, id := range item.TagIDs {
				if id != tagID {
					kept = append(kept, id)
				}
			}
			item.TagIDs = kept
			if err := c.repos.Items.Update(ctx, item); err != nil {
				return c.inconsistent("force delete tag", tagID, fmt.Errorf("detach tag from item %s: %w", item.ID, err))
			}
		}
	}

	if err := c.repos.Tags.Remove(ctx, tagID); err != nil {
		return c.inconsistent("delete tag", tagID, fmt.Errorf("remove tag: %w", err))
	}
	return nil
}

// DeleteUser reassigns or anonymizes everything the user touches, then
// deletes the user record. Owned projects pass to the earliest-created admin;
// if the user owns projects and no other admin exists the whole deletion
// fails with Conflict before anything is written.
func (c *Coordinator) DeleteUser(ctx context.Context, userID string) error {
	if _, err := c.repos.Users.ByID(ctx, userID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return err
	}

	owned, err := c.repos.Projects.ListByOwner(ctx, userID)
	if err != nil {
		return fmt.Errorf("list owned projects: %w", err)
	}

	// Precondition check happens in full before any write.
	var heir *model.User
	if len(owned) > 0 {
		heir, err = c.findHeir(ctx, userID)
		if err != nil {
			return err
		}
		if heir == nil {
			return apperr.Conflict("user owns projects and no admin exists to inherit them")
		}
	}

	for _, project := range owned {
		if _, err := c.registry.TransferOwnership(ctx, project.ID, heir.ID, true); err != nil {
			return c.inconsistent("delete user", userID, fmt.Errorf("transfer project %s: %w", project.ID, err))
		}
	}

	memberOf, err := c.repos.Projects.ListByMember(ctx, userID)
	if err != nil {
		return c.inconsistent("delete user", userID, fmt.Errorf("list memberships: %w", err))
	}
	for _, project := range memberOf {
		if _, err := c.registry.RemoveMember(ctx, project.ID, userID); err != nil {
			return c.inconsistent("delete user", userID, fmt.Errorf("remove membership in %s: %w", project.ID, err))
		}
	}

	assigned, err := c.repos.Items.ListByAssignee(ctx, userID)
	if err != nil {
		return c.inconsistent("delete user", userID, fmt.Errorf("list assigned items: %w", err))
	}
	for _, item := range assigned {
		item.AssigneeID = nil
		if err := c.repos.Items.Update(ctx, item); err != nil {
			return c.inconsistent("delete user", userID, fmt.Errorf("clear assignee on %s: %w", item.ID, err))
		}
	}

	reported, err := c.repos.Items.ListByReporter(ctx, userID)
	if err != nil {
		return c.inconsistent("delete user", userID, fmt.Errorf("list reported items: %w", err))
	}
	for _, item := range reported {
		item.ReporterID = nil
		if err := c.repos.Items.Update(ctx, item); err != nil {
			return c.inconsistent("delete user", userID, fmt.Errorf("clear reporter on %s: %w", item.ID, err))
		}
	}

	authored, err := c.repos.Comments.ListByAuthor(ctx, userID)
	if err != nil {
		return c.inconsistent("delete user", userID, fmt.Errorf("list authored comments: %w", err))
	}
	for _, comment := range authored {
		comment.AuthorID = nil
		if err := c.repos.Comments.Update(ctx, comment); err != nil {
			return c.inconsistent("delete user", userID, fmt.Errorf("anonymize comment %s: %w", comment.ID, err))
		}
	}

	if err := c.repos.Users.Remove(ctx, userID); err != nil {
		return c.inconsistent("delete user", userID, fmt.Errorf("remove user: %w", err))
	}
	return nil
}

// findHeir picks the inheriting admin deterministically: earliest created,
// id as tie-break. Nil when no other admin exists.
func (c *Coordinator) findHeir(ctx context.Context, excludeUserID string) (*model.User, error) {
	admins, err := c.repos.Users.ListByRole(ctx, model.GlobalAdmin)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	candidates := make([]model.User, 0, len(admins))
	for _, admin := range admins {
		if admin.ID != excludeUserID {
			candidates = append(candidates, admin)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	return &candidates[0], nil
}

func (c *Coordinator) inconsistent(operation, id string, err error) error {
	log.Printf("WARNING: cascade %s %s left the store inconsistent, operator intervention required: %v", operation, id, err)
	return apperr.Internal(err)
}
