package cache

import (
	"context"
	"hash/fnv"
	"log"

	"github.com/redis/go-redis/v9"
)

// EligibilityFilter 基于Redis位图的布隆过滤器，挡在资格查询前面。
// 否定结果说明号码一定不在名单里，可以直接拒绝；肯定结果仍需查库。
type EligibilityFilter struct {
	client *redis.Client
	key    string
	hashes int
}

// NewEligibilityFilter 创建资格布隆过滤器
func NewEligibilityFilter() *EligibilityFilter {
	client, err := GetClient()
	if err != nil {
		log.Printf("初始化资格过滤器失败: %v", err)
		return nil
	}
	return &EligibilityFilter{
		client: client,
		key:    "bloom:eligible_phones",
		hashes: 5,
	}
}

// Add 把号码加入过滤器
func (f *EligibilityFilter) Add(ctx context.Context, phone string) error {
	if f == nil || f.client == nil {
		return ErrRedisNotAvailable
	}

	pipe := f.client.Pipeline()
	for i := 0; i < f.hashes; i++ {
		pipe.SetBit(ctx, f.key, f.hash(phone, i), 1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// MayContain 检查号码是否可能在名单里。返回false说明一定不在。
func (f *EligibilityFilter) MayContain(ctx context.Context, phone string) (bool, error) {
	if f == nil || f.client == nil {
		return false, ErrRedisNotAvailable
	}

	pipe := f.client.Pipeline()
	cmds := make([]*redis.IntCmd, 0, f.hashes)
	for i := 0; i < f.hashes; i++ {
		cmds = append(cmds, pipe.GetBit(ctx, f.key, f.hash(phone, i)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	for _, cmd := range cmds {
		if cmd.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Rebuild 用当前完整名单重建过滤器。名单会被管理员增删，
// 位图无法删除单个元素，所以每次变更后整体重建。
func (f *EligibilityFilter) Rebuild(ctx context.Context, phones []string) error {
	if f == nil || f.client == nil {
		return ErrRedisNotAvailable
	}

	pipe := f.client.Pipeline()
	pipe.Del(ctx, f.key)
	for _, phone := range phones {
		for i := 0; i < f.hashes; i++ {
			pipe.SetBit(ctx, f.key, f.hash(phone, i), 1)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// hash 计算哈希值，使用不同的种子
func (f *EligibilityFilter) hash(key string, seed int) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	h.Write([]byte{byte(seed)})
	return int64(h.Sum64() % uint64(1<<30)) // 使用2^30位
}
