package saliency

import (
	"github.com/storyweaver/saliency-go/pkg/knowledge"
)

// FilterVisible 可见性过滤
//
// 纯函数：丢弃卡片级不可见的元素，并从返回的副本中剥离
// 不可见属性；原始知识库记录不被触碰。
//
// 该过滤在优化与原始两条路径前无条件执行——可见性是绝对门禁，
// 不是排序因素，Raw 模式绕过的是评分，从不绕过可见性。
func FilterVisible(elements []*knowledge.StoryKnowledgeElement) []*knowledge.StoryKnowledgeElement {
	visible := make([]*knowledge.StoryKnowledgeElement, 0, len(elements))

	for _, e := range elements {
		if e == nil || !e.Visible {
			continue
		}

		cloned := e.Clone()
		cloned.Traits = e.VisibleTraits()
		visible = append(visible, cloned)
	}

	return visible
}
