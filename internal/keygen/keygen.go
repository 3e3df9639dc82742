// Package keygen issues the human-readable item keys ("ALPHA-7"). The store
// has no atomic increment, so allocation is serialized per project and
// re-reads the current maximum inside the critical section.
package keygen

import (
	"context"
	"fmt"
	"sync"

	"tracker/api/internal/model"
	"tracker/api/internal/repo"
	"tracker/api/internal/util"
)

type Generator struct {
	items *repo.Items
	locks *util.KeyedMutex

	mu sync.Mutex
	// highWater remembers the largest sequence issued per project for this
	// process lifetime, so deleting the newest item never frees its number.
	highWater map[string]int
}

func NewGenerator(items *repo.Items) *Generator {
	return &Generator{
		items:     items,
		locks:     util.NewKeyedMutex(),
		highWater: make(map[string]int),
	}
}

// Next allocates the next key for the project: one greater than the highest
// sequence currently in use or previously issued. Two concurrent calls for
// the same project never receive the same number.
func (g *Generator) Next(ctx context.Context, project *model.Project) (string, int, error) {
	unlock := g.locks.Lock(project.ID)
	defer unlock()

	items, err := g.items.ListByProject(ctx, project.ID)
	if err != nil {
		return "", 0, fmt.Errorf("scan item keys: %w", err)
	}
	max := 0
	for _, item := range items {
		if item.Seq > max {
			max = item.Seq
		}
	}

	g.mu.Lock()
	if issued := g.highWater[project.ID]; issued > max {
		max = issued
	}
	seq := max + 1
	g.highWater[project.ID] = seq
	g.mu.Unlock()

	return fmt.Sprintf("%s-%d", project.Key, seq), seq, nil
}

// Forget drops the in-memory watermark for a deleted project.
func (g *Generator) Forget(projectID string) {
	g.mu.Lock()
	delete(g.highWater, projectID)
	g.mu.Unlock()
}
