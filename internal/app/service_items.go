package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"tracker/api/internal/access"
	"tracker/api/internal/apperr"
	"tracker/api/internal/docstore"
	"tracker/api/internal/mentions"
	"tracker/api/internal/model"
	"tracker/api/internal/util"
)

type CreateItemInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	AssigneeID  *string  `json:"assigneeId"`
	ParentID    *string  `json:"parentId"`
	TagIDs      []string `json:"tagIds"`
}

type UpdateItemInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Type        *string   `json:"type"`
	Status      *string   `json:"status"`
	Priority    *string   `json:"priority"`
	AssigneeID  *string   `json:"assigneeId"`
	ClearAssign bool      `json:"clearAssignee"`
	ParentID    *string   `json:"parentId"`
	ClearParent bool      `json:"clearParent"`
	TagIDs      *[]string `json:"tagIds"`
}

type ItemFilter struct {
	Status     string
	AssigneeID string
	Type       string
}

// CreateItem creates a work item in a project. The key is allocated by the
// per-project generator and never reused; the reporter is the actor.
func (s *Service) CreateItem(ctx context.Context, actor access.Actor, projectID string, input CreateItemInput) (map[string]any, error) {
	project, err := s.policy.CheckProject(ctx, actor, projectID, model.RoleDeveloper)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = string(model.StatusTodo)
	}
	priority := strings.TrimSpace(input.Priority)
	if priority == "" {
		priority = string(model.PriorityMedium)
	}
	messages := model.Check(map[string]string{
		"title":       title,
		"description": input.Description,
		"type":        strings.TrimSpace(input.Type),
		"status":      status,
		"priority":    priority,
	}, model.ItemConstraints)
	if len(messages) > 0 {
		return nil, apperr.Validation("invalid item", messages)
	}

	if input.AssigneeID != nil {
		if err := s.checkAssignee(&project, *input.AssigneeID); err != nil {
			return nil, err
		}
	}
	if input.ParentID != nil {
		if _, err := s.loadProjectItem(ctx, &project, *input.ParentID); err != nil {
			return nil, err
		}
	}

	tagIDs, err := s.cascades.ReconcileItemTags(ctx, &project, nil, input.TagIDs)
	if err != nil {
		return nil, err
	}

	key, seq, err := s.keys.Next(ctx, &project)
	if err != nil {
		return nil, err
	}

	reporterID := actor.ID
	now := time.Now().UTC()
	item := model.Item{
		ID:          util.NewID("itm"),
		ProjectID:   project.ID,
		Key:         key,
		Seq:         seq,
		Title:       title,
		Description: input.Description,
		Type:        model.ItemType(strings.TrimSpace(input.Type)),
		Status:      model.ItemStatus(status),
		Priority:    model.ItemPriority(priority),
		ReporterID:  &reporterID,
		AssigneeID:  input.AssigneeID,
		ParentID:    input.ParentID,
		TagIDs:      tagIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repos.Items.Insert(ctx, item); err != nil {
		return nil, err
	}
	return s.itemPayload(ctx, item), nil
}

// ListItems returns a project's items, optionally filtered by status,
// assignee, or type, paginated.
func (s *Service) ListItems(ctx context.Context, actor access.Actor, projectID string, filter ItemFilter, page, perPage int) (map[string]any, error) {
	if _, err := s.policy.CheckProject(ctx, actor, projectID, access.AnyMember); err != nil {
		return nil, err
	}
	items, err := s.repos.Items.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	filtered := items[:0:0]
	for _, item := range items {
		if filter.Status != "" && string(item.Status) != filter.Status {
			continue
		}
		if filter.Type != "" && string(item.Type) != filter.Type {
			continue
		}
		if filter.AssigneeID != "" && (item.AssigneeID == nil || *item.AssigneeID != filter.AssigneeID) {
			continue
		}
		filtered = append(filtered, item)
	}

	pageInfo, start, end := paginate(len(filtered), page, perPage)
	payloads := make([]map[string]any, 0, end-start)
	for _, item := range filtered[start:end] {
		payloads = append(payloads, s.itemPayload(ctx, item))
	}
	return map[string]any{"items": payloads, "pagination": pageInfo}, nil
}

func (s *Service) GetItem(ctx context.Context, actor access.Actor, itemID string) (map[string]any, error) {
	item, _, err := s.loadItemForActor(ctx, actor, itemID, access.AnyMember)
	if err != nil {
		return nil, err
	}
	return s.itemPayload(ctx, item), nil
}

// UpdateItem edits item fields. Key and project are immutable; reparenting
// is rejected when the new parent chain loops back to the item itself.
func (s *Service) UpdateItem(ctx context.Context, actor access.Actor, itemID string, input UpdateItemInput) (map[string]any, error) {
	item, project, err := s.loadItemForActor(ctx, actor, itemID, model.RoleDeveloper)
	if err != nil {
		return nil, err
	}

	values := map[string]string{}
	if input.Title != nil {
		values["title"] = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		values["description"] = *input.Description
	}
	if input.Type != nil {
		values["type"] = strings.TrimSpace(*input.Type)
	}
	if input.Status != nil {
		values["status"] = strings.TrimSpace(*input.Status)
	}
	if input.Priority != nil {
		values["priority"] = strings.TrimSpace(*input.Priority)
	}
	if messages := model.Check(values, model.ItemConstraints); len(messages) > 0 {
		return nil, apperr.Validation("invalid item", messages)
	}

	if title, ok := values["title"]; ok {
		item.Title = title
	}
	if input.Description != nil {
		item.Description = *input.Description
	}
	if typ, ok := values["type"]; ok {
		item.Type = model.ItemType(typ)
	}
	if status, ok := values["status"]; ok {
		item.Status = model.ItemStatus(status)
	}
	if priority, ok := values["priority"]; ok {
		item.Priority = model.ItemPriority(priority)
	}

	switch {
	case input.ClearAssign:
		item.AssigneeID = nil
	case input.AssigneeID != nil:
		if err := s.checkAssignee(&project, *input.AssigneeID); err != nil {
			return nil, err
		}
		item.AssigneeID = input.AssigneeID
	}

	switch {
	case input.ClearParent:
		item.ParentID = nil
	case input.ParentID != nil:
		if err := s.checkParent(ctx, &project, &item, *input.ParentID); err != nil {
			return nil, err
		}
		item.ParentID = input.ParentID
	}

	if input.TagIDs != nil {
		tagIDs, err := s.cascades.ReconcileItemTags(ctx, &project, item.TagIDs, *input.TagIDs)
		if err != nil {
			return nil, err
		}
		item.TagIDs = tagIDs
	}

	item.UpdatedAt = time.Now().UTC()
	if err := s.repos.Items.Update(ctx, item); err != nil {
		return nil, err
	}
	return s.itemPayload(ctx, item), nil
}

// DeleteItem removes an item with its comments and tag counter adjustments.
// The item's key stays retired even though the record is gone.
func (s *Service) DeleteItem(ctx context.Context, actor access.Actor, itemID string) error {
	item, _, err := s.loadItemForActor(ctx, actor, itemID, model.RoleDeveloper)
	if err != nil {
		return err
	}
	return s.cascades.DeleteItem(ctx, item)
}

type CommentInput struct {
	Content string `json:"content"`
}

// CreateComment posts a comment on an item. Mentions are extracted from the
// content and resolved against project members; the author has implicitly
// read their own comment.
func (s *Service) CreateComment(ctx context.Context, actor access.Actor, itemID string, input CommentInput) (map[string]any, error) {
	item, project, err := s.loadItemForActor(ctx, actor, itemID, model.RoleDeveloper)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(input.Content)
	if messages := model.Check(map[string]string{"content": content}, model.CommentConstraints); len(messages) > 0 {
		return nil, apperr.Validation("invalid comment", messages)
	}

	resolved, err := s.resolver.Resolve(ctx, mentions.Extract(content), &project)
	if err != nil {
		return nil, err
	}

	authorID := actor.ID
	now := time.Now().UTC()
	comment := model.Comment{
		ID:        util.NewID("cmt"),
		ItemID:    item.ID,
		AuthorID:  &authorID,
		Content:   content,
		Mentions:  resolved,
		ReadBy:    []string{actor.ID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Comments.Insert(ctx, comment); err != nil {
		return nil, err
	}
	return s.commentPayload(ctx, comment), nil
}

func (s *Service) ListComments(ctx context.Context, actor access.Actor, itemID string, page, perPage int) (map[string]any, error) {
	if _, _, err := s.loadItemForActor(ctx, actor, itemID, access.AnyMember); err != nil {
		return nil, err
	}
	comments, err := s.repos.Comments.ListByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	pageInfo, start, end := paginate(len(comments), page, perPage)
	payloads := make([]map[string]any, 0, end-start)
	for _, comment := range comments[start:end] {
		payloads = append(payloads, s.commentPayload(ctx, comment))
	}
	return map[string]any{"comments": payloads, "pagination": pageInfo}, nil
}

// UpdateComment edits a comment's content. Authors edit their own; project
// managers and admins may edit anyone's. Mentions are re-resolved.
func (s *Service) UpdateComment(ctx context.Context, actor access.Actor, commentID string, input CommentInput) (map[string]any, error) {
	comment, project, err := s.loadCommentForActor(ctx, actor, commentID)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(input.Content)
	if messages := model.Check(map[string]string{"content": content}, model.CommentConstraints); len(messages) > 0 {
		return nil, apperr.Validation("invalid comment", messages)
	}

	resolved, err := s.resolver.Resolve(ctx, mentions.Extract(content), &project)
	if err != nil {
		return nil, err
	}

	comment.Content = content
	comment.Mentions = resolved
	comment.UpdatedAt = time.Now().UTC()
	if err := s.repos.Comments.Update(ctx, comment); err != nil {
		return nil, err
	}
	return s.commentPayload(ctx, comment), nil
}

func (s *Service) DeleteComment(ctx context.Context, actor access.Actor, commentID string) error {
	comment, _, err := s.loadCommentForActor(ctx, actor, commentID)
	if err != nil {
		return err
	}
	return s.repos.Comments.Remove(ctx, comment.ID)
}

// MarkCommentRead records the actor in the comment's read set; repeated
// marks are no-ops.
func (s *Service) MarkCommentRead(ctx context.Context, actor access.Actor, commentID string) (map[string]any, error) {
	comment, err := s.loadComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	item, err := s.loadItem(ctx, comment.ItemID)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.CheckProject(ctx, actor, item.ProjectID, access.AnyMember); err != nil {
		return nil, err
	}
	if !comment.ReadByUser(actor.ID) {
		comment.ReadBy = append(comment.ReadBy, actor.ID)
		if err := s.repos.Comments.Update(ctx, comment); err != nil {
			return nil, err
		}
	}
	return s.commentPayload(ctx, comment), nil
}

func (s *Service) checkAssignee(project *model.Project, userID string) error {
	if userID == "" {
		return apperr.Validation("invalid assignee", []string{"assigneeId must not be empty"})
	}
	if !project.HasMember(userID) {
		return apperr.Validation("invalid assignee", []string{"assignee must be a project member"})
	}
	return nil
}

// checkParent validates a reparent: the parent must exist in the same
// project and the item must not appear anywhere in the new parent chain.
func (s *Service) checkParent(ctx context.Context, project *model.Project, item *model.Item, parentID string) error {
	if parentID == item.ID {
		return apperr.Validation("invalid parent", []string{"an item cannot be its own parent"})
	}
	current, err := s.loadProjectItem(ctx, project, parentID)
	if err != nil {
		return err
	}
	seen := map[string]bool{item.ID: true}
	for {
		if seen[current.ID] {
			return apperr.Validation("invalid parent", []string{"parent chain would form a cycle"})
		}
		seen[current.ID] = true
		if current.ParentID == nil {
			return nil
		}
		next, err := s.repos.Items.ByID(ctx, *current.ParentID)
		if errors.Is(err, docstore.ErrNotFound) {
			// Dangling parent reference ends the chain.
			return nil
		}
		if err != nil {
			return err
		}
		current = next
	}
}

func (s *Service) loadProjectItem(ctx context.Context, project *model.Project, itemID string) (model.Item, error) {
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return model.Item{}, err
	}
	if item.ProjectID != project.ID {
		return model.Item{}, apperr.Validation("invalid item reference", []string{"item belongs to a different project"})
	}
	return item, nil
}

func (s *Service) loadItem(ctx context.Context, itemID string) (model.Item, error) {
	item, err := s.repos.Items.ByID(ctx, itemID)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Item{}, apperr.NotFound("item not found")
	}
	if err != nil {
		return model.Item{}, err
	}
	return item, nil
}

func (s *Service) loadComment(ctx context.Context, commentID string) (model.Comment, error) {
	comment, err := s.repos.Comments.ByID(ctx, commentID)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Comment{}, apperr.NotFound("comment not found")
	}
	if err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

// loadItemForActor loads an item and gates on the actor's role in its
// project.
func (s *Service) loadItemForActor(ctx context.Context, actor access.Actor, itemID string, required model.ProjectRole) (model.Item, model.Project, error) {
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return model.Item{}, model.Project{}, err
	}
	project, err := s.policy.CheckProject(ctx, actor, item.ProjectID, required)
	if err != nil {
		return model.Item{}, model.Project{}, err
	}
	return item, project, nil
}

// loadCommentForActor loads a comment and applies the author-or-manager
// rule.
func (s *Service) loadCommentForActor(ctx context.Context, actor access.Actor, commentID string) (model.Comment, model.Project, error) {
	comment, err := s.loadComment(ctx, commentID)
	if err != nil {
		return model.Comment{}, model.Project{}, err
	}
	item, err := s.loadItem(ctx, comment.ItemID)
	if err != nil {
		return model.Comment{}, model.Project{}, err
	}
	project, err := s.policy.CheckProject(ctx, actor, item.ProjectID, access.AnyMember)
	if err != nil {
		return model.Comment{}, model.Project{}, err
	}
	if err := access.CheckComment(actor, &comment, &project); err != nil {
		return model.Comment{}, model.Project{}, err
	}
	return comment, project, nil
}

func (s *Service) itemPayload(ctx context.Context, item model.Item) map[string]any {
	payload := map[string]any{
		"id":          item.ID,
		"projectId":   item.ProjectID,
		"key":         item.Key,
		"title":       item.Title,
		"description": item.Description,
		"type":        item.Type,
		"status":      item.Status,
		"priority":    item.Priority,
		"reporterId":  item.ReporterID,
		"assigneeId":  item.AssigneeID,
		"parentId":    item.ParentID,
		"tagIds":      item.TagIDs,
		"createdAt":   item.CreatedAt.Format(time.RFC3339),
		"updatedAt":   item.UpdatedAt.Format(time.RFC3339),
	}
	if count, err := s.repos.Comments.CountByItem(ctx, item.ID); err == nil {
		payload["commentCount"] = count
	}
	return payload
}

func (s *Service) commentPayload(ctx context.Context, comment model.Comment) map[string]any {
	payload := map[string]any{
		"id":        comment.ID,
		"itemId":    comment.ItemID,
		"authorId":  comment.AuthorID,
		"content":   comment.Content,
		"mentions":  comment.Mentions,
		"readBy":    comment.ReadBy,
		"createdAt": comment.CreatedAt.Format(time.RFC3339),
		"updatedAt": comment.UpdatedAt.Format(time.RFC3339),
	}
	if comment.AuthorID != nil {
		if user, err := s.repos.Users.ByID(ctx, *comment.AuthorID); err == nil {
			payload["authorUsername"] = user.Username
		}
	}
	return payload
}
