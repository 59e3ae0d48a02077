package knowledge

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ElementKind 故事知识元素类型
type ElementKind string

const (
	// KindCharacter 角色
	KindCharacter ElementKind = "character"
	// KindWorldElement 世界观/设定条目
	KindWorldElement ElementKind = "world_element"
	// KindOutlineEntry 大纲/场景摘要
	KindOutlineEntry ElementKind = "outline_entry"
)

// Valid 判断元素类型是否合法
func (k ElementKind) Valid() bool {
	switch k {
	case KindCharacter, KindWorldElement, KindOutlineEntry:
		return true
	default:
		return false
	}
}

// Trait 元素的开放式键值属性
//
// 采用有序三元组列表而非任意 map，保留作者定义的顺序，
// 同时保持类型系统对已知形状封闭。
type Trait struct {
	// Name 属性名
	Name string `json:"name"`
	// Value 属性值
	Value string `json:"value"`
	// Visible 属性级可见性开关。false 时该属性不参与评分，
	// 也不出现在任何输出中
	Visible bool `json:"visible"`
}

// UsageStats 元素的使用统计，驱动新近性/熟悉度加成
type UsageStats struct {
	// LastReferencedAt 最近一次被生成请求引用的时间
	LastReferencedAt time.Time `json:"last_referenced_at"`
	// ReferenceCount 累计引用次数
	ReferenceCount int `json:"reference_count"`
}

// StoryKnowledgeElement 故事知识元素
//
// 角色、世界观条目或大纲/场景摘要，由作者维护并在生成请求间复用。
type StoryKnowledgeElement struct {
	// ID 快照内稳定且唯一的不透明标识
	ID string `json:"id"`
	// Kind 元素类型
	Kind ElementKind `json:"kind"`
	// Name 用于词法提及匹配的名称
	Name string `json:"name"`
	// Aliases 参与提及匹配的别名集合
	Aliases []string `json:"aliases,omitempty"`
	// Summary 用于嵌入的简短描述
	Summary string `json:"summary"`
	// Traits 有序属性列表
	Traits []Trait `json:"traits,omitempty"`
	// Visible 卡片级可见性开关。false 时整个元素对引擎不可见，
	// 无论属性可见性如何
	Visible bool `json:"visible"`
	// Usage 使用统计
	Usage UsageStats `json:"usage"`
}

// ElementOption 配置选项
type ElementOption func(*StoryKnowledgeElement)

// NewElement 创建新的故事知识元素
//
// 默认可见，ID 自动生成。
func NewElement(name string, kind ElementKind, opts ...ElementOption) *StoryKnowledgeElement {
	e := &StoryKnowledgeElement{
		ID:      uuid.New().String(),
		Kind:    kind,
		Name:    name,
		Visible: true,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// WithID 设置 ID
func WithID(id string) ElementOption {
	return func(e *StoryKnowledgeElement) {
		e.ID = id
	}
}

// WithAliases 设置别名
func WithAliases(aliases ...string) ElementOption {
	return func(e *StoryKnowledgeElement) {
		e.Aliases = aliases
	}
}

// WithSummary 设置摘要
func WithSummary(summary string) ElementOption {
	return func(e *StoryKnowledgeElement) {
		e.Summary = summary
	}
}

// WithTrait 追加一个属性
func WithTrait(name, value string, visible bool) ElementOption {
	return func(e *StoryKnowledgeElement) {
		e.Traits = append(e.Traits, Trait{Name: name, Value: value, Visible: visible})
	}
}

// WithVisible 设置卡片级可见性
func WithVisible(visible bool) ElementOption {
	return func(e *StoryKnowledgeElement) {
		e.Visible = visible
	}
}

// WithUsage 设置使用统计
func WithUsage(lastReferencedAt time.Time, referenceCount int) ElementOption {
	return func(e *StoryKnowledgeElement) {
		e.Usage = UsageStats{
			LastReferencedAt: lastReferencedAt,
			ReferenceCount:   referenceCount,
		}
	}
}

// Validate 验证元素的有效性
func (e *StoryKnowledgeElement) Validate() error {
	if e.ID == "" || e.Name == "" {
		return ErrInvalidElement
	}
	if !e.Kind.Valid() {
		return ErrInvalidElement
	}
	return nil
}

// Clone 深拷贝元素
func (e *StoryKnowledgeElement) Clone() *StoryKnowledgeElement {
	cloned := &StoryKnowledgeElement{
		ID:      e.ID,
		Kind:    e.Kind,
		Name:    e.Name,
		Summary: e.Summary,
		Visible: e.Visible,
		Usage:   e.Usage,
	}

	if e.Aliases != nil {
		cloned.Aliases = make([]string, len(e.Aliases))
		copy(cloned.Aliases, e.Aliases)
	}
	if e.Traits != nil {
		cloned.Traits = make([]Trait, len(e.Traits))
		copy(cloned.Traits, e.Traits)
	}

	return cloned
}

// VisibleTraits 返回可见属性的子序列，保持原有顺序
func (e *StoryKnowledgeElement) VisibleTraits() []Trait {
	traits := make([]Trait, 0, len(e.Traits))
	for _, t := range e.Traits {
		if t.Visible {
			traits = append(traits, t)
		}
	}
	return traits
}

// VisibleSurface 返回元素的可见文本表面
//
// 由名称、别名、摘要与可见属性拼接而成，是 Token 成本计算
// 与嵌入内容哈希的唯一输入。隐藏属性永不进入该表面。
func (e *StoryKnowledgeElement) VisibleSurface() string {
	var b strings.Builder
	b.WriteString(e.Name)
	for _, alias := range e.Aliases {
		b.WriteString("\n")
		b.WriteString(alias)
	}
	if e.Summary != "" {
		b.WriteString("\n")
		b.WriteString(e.Summary)
	}
	for _, t := range e.Traits {
		if !t.Visible {
			continue
		}
		b.WriteString("\n")
		b.WriteString(t.Name)
		b.WriteString(": ")
		b.WriteString(t.Value)
	}
	return b.String()
}
