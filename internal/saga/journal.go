package saga

import (
	"context"
	"sort"
	"sync"
)

// Journal 持久化 saga 的状态迁移，用于进程崩溃后的排查与恢复。
// 协调器在每一步开始前以及每次状态迁移后调用 Save。
type Journal interface {
	Save(ctx context.Context, inst Instance) error
}

// MemoryJournal 是进程内的 Journal 实现，只保留每个实例的最新快照。
type MemoryJournal struct {
	mu        sync.RWMutex
	instances map[string]Instance
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{instances: make(map[string]Instance)}
}

func (j *MemoryJournal) Save(_ context.Context, inst Instance) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.instances[inst.ID] = inst
	return nil
}

func (j *MemoryJournal) Get(id string) (Instance, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	inst, ok := j.instances[id]
	return inst, ok
}

// ListUnfinished 返回停留在 Running 或 Compensating 状态的实例，按开始时间排序。
func (j *MemoryJournal) ListUnfinished(_ context.Context) ([]Instance, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Instance
	for _, inst := range j.instances {
		if inst.Status == StatusRunning || inst.Status == StatusCompensating {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.Before(out[b].StartedAt) })
	return out, nil
}
