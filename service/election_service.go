package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ntro-voting-backend/cache"
	"ntro-voting-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ElectionService 负责选举生命周期管理和候选人维护
type ElectionService struct {
	db      *gorm.DB
	locks   *cache.DistributedLockService
	results *cache.ResultsCache
}

// NewElectionService 创建选举服务
func NewElectionService(db *gorm.DB, locks *cache.DistributedLockService, results *cache.ResultsCache) *ElectionService {
	return &ElectionService{db: db, locks: locks, results: results}
}

// nomineesInOrder 候选人固定按加入顺序加载，计票顺序和平票规则都依赖它
func nomineesInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("nominees.id")
}

// Create 创建选举。状态无条件初始化为ONGOING，忽略调用方传入的值
func (s *ElectionService) Create(ctx context.Context, election *models.Election) error {
	election.ID = 0
	election.Status = models.StatusOngoing
	election.WinnerNomineeID = nil
	return s.db.WithContext(ctx).Create(election).Error
}

// Get 按ID获取选举及其候选人
func (s *ElectionService) Get(ctx context.Context, id uint) (*models.Election, error) {
	var election models.Election
	if err := s.db.WithContext(ctx).Preload("Nominees", nomineesInOrder).First(&election, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrElectionNotFound
		}
		return nil, err
	}
	return &election, nil
}

// ListAll 列出全部选举
func (s *ElectionService) ListAll(ctx context.Context) ([]models.Election, error) {
	var elections []models.Election
	if err := s.db.WithContext(ctx).Preload("Nominees", nomineesInOrder).Order("id").Find(&elections).Error; err != nil {
		return nil, err
	}
	return elections, nil
}

// ListActive 列出进行中的选举
func (s *ElectionService) ListActive(ctx context.Context) ([]models.Election, error) {
	var elections []models.Election
	if err := s.db.WithContext(ctx).Preload("Nominees", nomineesInOrder).
		Where("status = ?", models.StatusOngoing).Order("id").Find(&elections).Error; err != nil {
		return nil, err
	}
	return elections, nil
}

// UpdateStatus 无条件覆写选举状态。CLOSED到ONGOING的重开是允许的。
// 存在性检查和更新在同一个事务里并持有行锁，并发删除不会把
// 更新变成静默的零行成功。
func (s *ElectionService) UpdateStatus(ctx context.Context, id uint, status models.ElectionStatus) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var election models.Election
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&election, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrElectionNotFound
			}
			return err
		}
		return tx.Model(&models.Election{}).
			Where("id = ?", id).Update("status", status).Error
	})
	if err != nil {
		return err
	}
	s.results.Invalidate(ctx, id)
	return nil
}

// ResetVotes 清空某次选举的所有选票，状态和胜者保持不变。
// 用于在不重建候选人的前提下重新投票。
func (s *ElectionService) ResetVotes(ctx context.Context, id uint) error {
	return s.locks.WithLock(lockName(id), 10*time.Second, func() error {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		if err := s.db.WithContext(ctx).
			Delete(&models.Vote{}, "election_id = ?", id).Error; err != nil {
			return err
		}
		s.results.Invalidate(ctx, id)
		return nil
	})
}

// Finalize 计票并关闭选举。胜者是得票数严格最多的候选人，
// 平票时保留候选人顺序里先遇到的那个（确定性但依赖顺序的规则）。
// 胜者写入和状态关闭在同一个事务里完成；重复finalize返回AlreadyFinalized。
func (s *ElectionService) Finalize(ctx context.Context, id uint) (*models.Election, error) {
	var finalized *models.Election

	err := s.locks.WithLock(lockName(id), 10*time.Second, func() error {
		tx := s.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return tx.Error
		}

		// 锁定选举行，挡住计票和提交之间的并发投票
		var election models.Election
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Nominees", nomineesInOrder).First(&election, id).Error; err != nil {
			tx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrElectionNotFound
			}
			return err
		}

		if election.Status == models.StatusClosed {
			tx.Rollback()
			return ErrAlreadyFinalized
		}

		// 按候选人顺序遍历，只有严格更多的票数才能取代当前胜者
		var winnerID *uint
		var maxVotes int64
		for i := range election.Nominees {
			nominee := election.Nominees[i]
			var count int64
			if err := tx.Model(&models.Vote{}).
				Where("nominee_id = ?", nominee.ID).Count(&count).Error; err != nil {
				tx.Rollback()
				return err
			}
			if count > maxVotes {
				maxVotes = count
				winnerID = &election.Nominees[i].ID
			}
		}

		election.Status = models.StatusClosed
		election.WinnerNomineeID = winnerID
		if err := tx.Model(&models.Election{}).Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":            models.StatusClosed,
				"winner_nominee_id": winnerID,
			}).Error; err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit().Error; err != nil {
			return err
		}

		finalized = &election
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.results.Invalidate(ctx, id)
	return finalized, nil
}

// Delete 删除选举，级联删除其候选人和选票，整体在一个事务里
func (s *ElectionService) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var election models.Election
		if err := tx.First(&election, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrElectionNotFound
			}
			return err
		}
		if err := tx.Delete(&models.Vote{}, "election_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Nominee{}, "election_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Election{}, id).Error
	})
	if err != nil {
		return err
	}
	s.results.Invalidate(ctx, id)
	return nil
}

// AddNominee 向选举添加候选人
func (s *ElectionService) AddNominee(ctx context.Context, electionID uint, nominee *models.Nominee) error {
	if _, err := s.Get(ctx, electionID); err != nil {
		return err
	}
	nominee.ID = 0
	nominee.ElectionID = electionID
	return s.db.WithContext(ctx).Create(nominee).Error
}

// DeleteNominee 删除候选人及其选票
func (s *ElectionService) DeleteNominee(ctx context.Context, id uint) error {
	var nominee models.Nominee
	if err := s.db.WithContext(ctx).First(&nominee, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNomineeNotFound
		}
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Vote{}, "nominee_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Nominee{}, id).Error
	})
	if err != nil {
		return err
	}
	s.results.Invalidate(ctx, nominee.ElectionID)
	return nil
}

func lockName(electionID uint) string {
	return fmt.Sprintf("election:%d:admin", electionID)
}
