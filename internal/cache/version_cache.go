// Package cache 提供已发布提示词版本的进程内缓存
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"prompthub/internal/metrics"
)

const versionCacheName = "version"

// entry LFU 缓存中的一个条目
type entry struct {
	key      string
	value    any
	freq     int       // 访问频率
	expireAt time.Time // 过期时间，零值表示不过期
}

// VersionCache 已发布提示词版本的进程内 LFU 缓存。
// 版本一经发布不可变，命中即有效，无需主动失效；
// TTL 只兜底项目删除后的残留条目。
type VersionCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	minFreq  int
	entries  map[string]*entry
	freqs    map[int]*list.List       // 频率 -> 条目链表，同频率按先进先出淘汰
	elems    map[*entry]*list.Element // 条目 -> 链表元素
}

// NewVersionCache 创建版本缓存。
// capacity 为最大条目数，达到上限时按 LFU 淘汰；ttl 传 0 表示不过期。
func NewVersionCache(capacity int, ttl time.Duration) *VersionCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &VersionCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*entry),
		freqs:    make(map[int]*list.List),
		elems:    make(map[*entry]*list.Element),
	}
}

// VersionKey 构造 (租户, 提示词, 版本) 的缓存键
func VersionKey(tenantID, promptID int64, version int) string {
	return fmt.Sprintf("%d:%d:%d", tenantID, promptID, version)
}

// Get 查询缓存条目
func (c *VersionCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.CacheMissesTotal.WithLabelValues(versionCacheName).Inc()
		return nil, false
	}
	if c.ttl > 0 && time.Now().After(e.expireAt) {
		c.remove(e)
		delete(c.entries, key)
		metrics.CacheMissesTotal.WithLabelValues(versionCacheName).Inc()
		return nil, false
	}

	c.touch(e)
	metrics.CacheHitsTotal.WithLabelValues(versionCacheName).Inc()
	return e.value, true
}

// Set 写入缓存条目，已存在时覆盖值并提升频率
func (c *VersionCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		if c.ttl > 0 {
			e.expireAt = time.Now().Add(c.ttl)
		}
		c.touch(e)
		return
	}

	if len(c.entries) >= c.capacity {
		c.evict()
	}

	e := &entry{key: key, value: value, freq: 1}
	if c.ttl > 0 {
		e.expireAt = time.Now().Add(c.ttl)
	}
	c.entries[key] = e
	c.push(e)
	c.minFreq = 1
}

// Purge 清空全部条目。项目删除的级联清理会整体清空，避免已删版本被继续命中。
func (c *VersionCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.freqs = make(map[int]*list.List)
	c.elems = make(map[*entry]*list.Element)
	c.minFreq = 0
}

// Len 当前条目数
func (c *VersionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// touch 提升条目频率
func (c *VersionCache) touch(e *entry) {
	c.remove(e)
	e.freq++
	c.push(e)
	if c.freqs[c.minFreq] == nil || c.freqs[c.minFreq].Len() == 0 {
		c.minFreq++
	}
}

// push 将条目挂到对应频率链表尾部
func (c *VersionCache) push(e *entry) {
	if c.freqs[e.freq] == nil {
		c.freqs[e.freq] = list.New()
	}
	c.elems[e] = c.freqs[e.freq].PushBack(e)
}

// remove 将条目从频率链表摘除
func (c *VersionCache) remove(e *entry) {
	elem := c.elems[e]
	if elem == nil || c.freqs[e.freq] == nil {
		return
	}
	c.freqs[e.freq].Remove(elem)
	delete(c.elems, e)
	if c.freqs[e.freq].Len() == 0 {
		delete(c.freqs, e.freq)
	}
}

// evict 淘汰最小频率链表中最早加入的条目
func (c *VersionCache) evict() {
	l := c.freqs[c.minFreq]
	if l == nil || l.Len() == 0 {
		// 过期清理可能留下悬空的最小频率，重扫一遍
		c.minFreq = 0
		for f := range c.freqs {
			if c.minFreq == 0 || f < c.minFreq {
				c.minFreq = f
			}
		}
		if l = c.freqs[c.minFreq]; l == nil || l.Len() == 0 {
			return
		}
	}

	e := l.Front().Value.(*entry)
	c.remove(e)
	delete(c.entries, e.key)
}
