package cascade

import (
	"context"
	"testing"
	"time"

	"tracker/api/internal/apperr"
	"tracker/api/internal/model"
	"tracker/api/internal/repo"
)

func seedTags(t *testing.T, repos *repo.Repos) model.Project {
	t.Helper()
	ctx := context.Background()
	seedUser(t, repos, "usr_owner", model.GlobalDeveloper, time.Now())
	project := seedProject(t, repos, "prj_1", "usr_owner")
	for _, id := range []string{"tag_a", "tag_b"} {
		if err := repos.Tags.Insert(ctx, model.Tag{ID: id, ProjectID: "prj_1", Name: id}); err != nil {
			t.Fatalf("seed tag %s: %v", id, err)
		}
	}
	return project
}

func usage(t *testing.T, repos *repo.Repos, tagID string) int {
	t.Helper()
	tag, err := repos.Tags.ByID(context.Background(), tagID)
	if err != nil {
		t.Fatalf("load tag %s: %v", tagID, err)
	}
	return tag.UsageCount
}

func TestReconcileItemTags(t *testing.T) {
	coord, repos := setup(t)
	project := seedTags(t, repos)
	ctx := context.Background()

	got, err := coord.ReconcileItemTags(ctx, &project, nil, []string{"tag_a", "tag_a", "tag_b"})
	if err != nil {
		t.Fatalf("ReconcileItemTags: %v", err)
	}
	if len(got) != 2 || got[0] != "tag_a" || got[1] != "tag_b" {
		t.Fatalf("canonical tags = %v, want [tag_a tag_b]", got)
	}
	if usage(t, repos, "tag_a") != 1 || usage(t, repos, "tag_b") != 1 {
		t.Fatal("attach did not bump usage counters")
	}

	// Swap tag_b out for nothing: tag_a stays, tag_b decrements.
	got, err = coord.ReconcileItemTags(ctx, &project, got, []string{"tag_a"})
	if err != nil {
		t.Fatalf("ReconcileItemTags: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("canonical tags = %v, want [tag_a]", got)
	}
	if usage(t, repos, "tag_a") != 1 {
		t.Fatal("unchanged tag counter moved")
	}
	if usage(t, repos, "tag_b") != 0 {
		t.Fatal("detached tag counter not decremented")
	}
}

func TestReconcileItemTagsRejectsForeignTag(t *testing.T) {
	coord, repos := setup(t)
	seedTags(t, repos)
	ctx := context.Background()

	other := seedProject(t, repos, "prj_2", "usr_owner")
	if _, err := coord.ReconcileItemTags(ctx, &other, nil, []string{"tag_a"}); !apperr.HasCode(err, "VALIDATION_ERROR") {
		t.Fatalf("cross-project tag = %v, want Validation", err)
	}
}

func TestReconcileItemTagsUnknownTag(t *testing.T) {
	coord, repos := setup(t)
	project := seedTags(t, repos)

	if _, err := coord.ReconcileItemTags(context.Background(), &project, nil, []string{"tag_ghost"}); !apperr.IsNotFound(err) {
		t.Fatalf("unknown tag = %v, want NotFound", err)
	}
}

func TestRecountTagUsage(t *testing.T) {
	coord, repos := setup(t)
	seedTags(t, repos)
	ctx := context.Background()

	for i, id := range []string{"itm_1", "itm_2"} {
		item := model.Item{ID: id, ProjectID: "prj_1", Key: "ALPHA-1", Seq: i + 1, Title: "work", Type: model.ItemTask, TagIDs: []string{"tag_a"}}
		if err := repos.Items.Insert(ctx, item); err != nil {
			t.Fatalf("seed item: %v", err)
		}
	}

	// Counter drifted; recount repairs it from the items.
	tag, err := repos.Tags.ByID(ctx, "tag_a")
	if err != nil {
		t.Fatalf("load tag: %v", err)
	}
	tag.UsageCount = 7
	if err := repos.Tags.Update(ctx, tag); err != nil {
		t.Fatalf("drift counter: %v", err)
	}

	repaired, err := coord.RecountTagUsage(ctx, "tag_a")
	if err != nil {
		t.Fatalf("RecountTagUsage: %v", err)
	}
	if repaired.UsageCount != 2 {
		t.Fatalf("recounted usage = %d, want 2", repaired.UsageCount)
	}
}

func TestBumpTagUsageClampsAtZero(t *testing.T) {
	coord, repos := setup(t)
	seedTags(t, repos)

	if err := coord.adjustTagUsage(context.Background(), []string{"tag_a"}, nil); err != nil {
		t.Fatalf("adjustTagUsage: %v", err)
	}
	if usage(t, repos, "tag_a") != 0 {
		t.Fatal("counter went negative")
	}
}
