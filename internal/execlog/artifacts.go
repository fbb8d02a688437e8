package execlog

import (
	"context"
	"encoding/json"
	"fmt"

	"prompthub/internal/metrics"
	"prompthub/internal/objectstore"

	"go.uber.org/zap"
)

// ArtifactStore 执行产物读写，封装对象存储上的 key 布局。
// 产物可以从上游重建，不是事实源，写入统一走 TryWrite 降级为尽力而为。
type ArtifactStore struct {
	store objectstore.Store
	log   *zap.Logger
}

// NewArtifactStore 创建产物存储
func NewArtifactStore(store objectstore.Store, log *zap.Logger) *ArtifactStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ArtifactStore{store: store, log: log}
}

// Write 序列化并写入一个产物，失败上抛
func (a *ArtifactStore) Write(ctx context.Context, logPath, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.ArtifactWritesTotal.WithLabelValues(name, "error").Inc()
		return fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	if err := a.store.Put(ctx, ArtifactKey(logPath, name), data); err != nil {
		metrics.ArtifactWritesTotal.WithLabelValues(name, "error").Inc()
		return fmt.Errorf("put artifact %s: %w", name, err)
	}
	metrics.ArtifactWritesTotal.WithLabelValues(name, "ok").Inc()
	return nil
}

// TryWrite 尽力而为写入: 任何失败都只记日志，从不上抛
func (a *ArtifactStore) TryWrite(ctx context.Context, logPath, name string, payload any) {
	if err := a.Write(ctx, logPath, name, payload); err != nil {
		a.log.Warn("产物写入失败",
			zap.String("log_path", logPath),
			zap.String("artifact", name),
			zap.Error(err),
		)
	}
}

// Read 读取一个产物的原始字节，不存在时返回 objectstore.ErrNotFound
func (a *ArtifactStore) Read(ctx context.Context, logPath, name string) ([]byte, error) {
	return a.store.Get(ctx, ArtifactKey(logPath, name))
}

// DeleteAll 删除一次执行的全部产物
func (a *ArtifactStore) DeleteAll(ctx context.Context, logPath string) error {
	keys, err := a.store.List(ctx, logPath+"/")
	if err != nil {
		return fmt.Errorf("list artifacts under %s: %w", logPath, err)
	}
	for _, key := range keys {
		if err := a.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete artifact %s: %w", key, err)
		}
	}
	return nil
}
