package knowledge

import "errors"

// 知识库存储相关错误
var (
	// ErrInvalidElement 元素无效
	ErrInvalidElement = errors.New("invalid element")
	// ErrSnapshotNotFound 快照不存在
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrSnapshotExists 快照已存在（快照不可变，不允许覆盖）
	ErrSnapshotExists = errors.New("snapshot already exists")
	// ErrConnectionFailed 连接失败
	ErrConnectionFailed = errors.New("connection failed")
)
