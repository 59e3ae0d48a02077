package knowledge

import (
	"context"
	"sync"
)

// MemorySource 内存快照源
//
// 面向测试和单进程场景。快照写入后不可变，
// 读取时返回深拷贝以保证引擎侧的只读契约。
type MemorySource struct {
	snapshots map[string][]*StoryKnowledgeElement
	mu        sync.RWMutex
}

// NewMemorySource 创建内存快照源
func NewMemorySource() *MemorySource {
	return &MemorySource{
		snapshots: make(map[string][]*StoryKnowledgeElement),
	}
}

// GetElements 返回快照内的全部元素
func (s *MemorySource) GetElements(ctx context.Context, snapshotID string) ([]*StoryKnowledgeElement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	elements, ok := s.snapshots[snapshotID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}

	cloned := make([]*StoryKnowledgeElement, len(elements))
	for i, e := range elements {
		cloned[i] = e.Clone()
	}
	return cloned, nil
}

// HasSnapshot 判断快照是否存在
func (s *MemorySource) HasSnapshot(ctx context.Context, snapshotID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.snapshots[snapshotID]
	return ok, nil
}

// PutSnapshot 写入一个完整快照
func (s *MemorySource) PutSnapshot(ctx context.Context, snapshotID string, elements []*StoryKnowledgeElement) error {
	if snapshotID == "" {
		return ErrInvalidElement
	}
	for _, e := range elements {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[snapshotID]; ok {
		return ErrSnapshotExists
	}

	cloned := make([]*StoryKnowledgeElement, len(elements))
	for i, e := range elements {
		cloned[i] = e.Clone()
	}
	s.snapshots[snapshotID] = cloned
	return nil
}

// DeleteSnapshot 删除快照
func (s *MemorySource) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[snapshotID]; !ok {
		return ErrSnapshotNotFound
	}
	delete(s.snapshots, snapshotID)
	return nil
}

// Close 关闭（内存实现为空操作）
func (s *MemorySource) Close() error {
	return nil
}

// 编译时接口检查
var _ Source = (*MemorySource)(nil)
var _ Writer = (*MemorySource)(nil)
