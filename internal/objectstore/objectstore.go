package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("object not found")

// Store 对象存储接口
// 执行产物（input/output/variables 等 JSON 快照）通过该接口读写
type Store interface {
	// Put 写入对象，key 已存在时覆盖
	Put(ctx context.Context, key string, data []byte) error
	// Get 读取对象，不存在时返回 ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete 删除对象，对象不存在不报错
	Delete(ctx context.Context, key string) error
	// List 列出指定前缀下的所有 key
	List(ctx context.Context, prefix string) ([]string, error)
}
