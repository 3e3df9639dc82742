package cascade

import (
	"context"
	"errors"
	"fmt"

	"tracker/api/internal/apperr"
	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
)

// ReconcileItemTags validates a new tag set for an item in the given project
// and adjusts the usage counters for whatever changed. It returns the
// canonical (deduplicated) tag list the caller should persist on the item.
// Only this package touches usageCount.
func (c *Coordinator) ReconcileItemTags(ctx context.Context, project *model.Project, oldIDs, newIDs []string) ([]string, error) {
	canonical := make([]string, 0, len(newIDs))
	seen := make(map[string]struct{}, len(newIDs))
	for _, tagID := range newIDs {
		if _, dup := seen[tagID]; dup {
			continue
		}
		seen[tagID] = struct{}{}

		tag, err := c.repos.Tags.ByID(ctx, tagID)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperr.NotFound("tag not found: " + tagID)
		}
		if err != nil {
			return nil, err
		}
		if tag.ProjectID != project.ID {
			return nil, apperr.Validation("tag belongs to a different project", []string{tagID})
		}
		canonical = append(canonical, tagID)
	}

	if err := c.adjustTagUsage(ctx, oldIDs, canonical); err != nil {
		return nil, err
	}
	return canonical, nil
}

// RecountTagUsage rebuilds one tag's counter from the items that reference
// it. This is a repair operation for use after a logged cascade
// inconsistency; the stored counter stays the single source of truth for
// reads.
func (c *Coordinator) RecountTagUsage(ctx context.Context, tagID string) (model.Tag, error) {
	tag, err := c.repos.Tags.ByID(ctx, tagID)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Tag{}, apperr.NotFound("tag not found")
	}
	if err != nil {
		return model.Tag{}, err
	}
	items, err := c.repos.Items.ListByTag(ctx, tag.ProjectID, tagID)
	if err != nil {
		return model.Tag{}, fmt.Errorf("list items by tag: %w", err)
	}
	tag.UsageCount = len(items)
	if err := c.repos.Tags.Update(ctx, tag); err != nil {
		return model.Tag{}, err
	}
	return tag, nil
}

// adjustTagUsage applies counter deltas for tags leaving and entering an
// item's tag set. Counters never go below zero even if a previous partial
// failure left them off; RecountTagUsage is the explicit repair.
func (c *Coordinator) adjustTagUsage(ctx context.Context, oldIDs, newIDs []string) error {
	old := make(map[string]struct{}, len(oldIDs))
	for _, id := range oldIDs {
		old[id] = struct{}{}
	}
	next := make(map[string]struct{}, len(newIDs))
	for _, id := range newIDs {
		next[id] = struct{}{}
	}

	for _, id := range newIDs {
		if _, had := old[id]; !had {
			if err := c.bumpTagUsage(ctx, id, 1); err != nil {
				return err
			}
		}
	}
	for _, id := range oldIDs {
		if _, keeps := next[id]; !keeps {
			if err := c.bumpTagUsage(ctx, id, -1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Coordinator) bumpTagUsage(ctx context.Context, tagID string, delta int) error {
	tag, err := c.repos.Tags.ByID(ctx, tagID)
	if errors.Is(err, docstore.ErrNotFound) {
		// Tag already cascaded away; nothing to count.
		return nil
	}
	if err != nil {
		return err
	}
	tag.UsageCount += delta
	if tag.UsageCount < 0 {
		tag.UsageCount = 0
	}
	if err := c.repos.Tags.Update(ctx, tag); err != nil {
		return fmt.Errorf("update tag usage %s: %w", tagID, err)
	}
	return nil
}
