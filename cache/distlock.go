package cache

import (
	"log"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
)

// rs 全局的Redsync实例
var rs *redsync.Redsync

// DistributedLockService 分布式锁服务。多实例部署时用于串行化
// finalize/reset这类管理操作；Redis不可用时退化为直接执行。
type DistributedLockService struct {
	rs *redsync.Redsync
}

// InitDistLock 初始化分布式锁
func InitDistLock() {
	client, err := GetClient()
	if err != nil {
		log.Printf("初始化分布式锁失败: %v", err)
		return
	}

	pool := goredis.NewPool(client)
	rs = redsync.New(pool)
	log.Println("分布式锁初始化成功")
}

// GetLockService 获取分布式锁服务实例
func GetLockService() *DistributedLockService {
	return &DistributedLockService{rs: rs}
}

// WithLock 在命名锁内执行操作。单实例（无Redis）场景下直接执行，
// 事务本身仍然保证数据一致性。
func (s *DistributedLockService) WithLock(lockName string, expiry time.Duration, action func() error) error {
	if s == nil || s.rs == nil {
		return action()
	}

	mutex := s.rs.NewMutex(lockName,
		redsync.WithExpiry(expiry),
		redsync.WithTries(5),                        // 最大重试次数
		redsync.WithRetryDelay(50*time.Millisecond), // 重试延迟
		redsync.WithDriftFactor(0.01),               // 时钟漂移因子
	)

	if err := mutex.Lock(); err != nil {
		return ErrLockNotAcquired
	}

	defer func() {
		_, _ = mutex.Unlock()
	}()

	return action()
}
