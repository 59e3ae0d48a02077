// Package saliency 为长篇写作助手提供相关性排序的上下文装配能力。
//
// 引擎位于"作者维护的知识库"与"下游文本生成方"之间：
// 给定当前正在生成的文本和一个知识库快照，
// 在严格的 Token 预算与元素级/属性级可见性控制下，
// 选出最小、最相关的知识子集。
//
// 流水线: 可见性过滤 → 相关性评分 → 预算内子集优化。
// Raw 模式绕过评分与预算，但永不绕过可见性过滤。
package saliency
