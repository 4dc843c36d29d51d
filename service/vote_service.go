package service

import (
	"context"
	"errors"
	"log"
	"time"

	"ntro-voting-backend/cache"
	"ntro-voting-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NomineeResult 单个候选人的计票结果
type NomineeResult struct {
	NomineeID uint   `json:"nomineeId"`
	Name      string `json:"name"`
	VoteCount int64  `json:"count"`
}

// VoterInfo 统计结果里的选民信息
type VoterInfo struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// VotingStatistics 投票参与度统计。totalEligible是全量名单大小，
// 不是选举创建时间点的快照，名单在两次选举之间变化时会偏大，
// 这是对上游行为的保留。
type VotingStatistics struct {
	TotalEligible int64       `json:"totalEligible"`
	TotalVoted    int64       `json:"totalVoted"`
	Voted         []VoterInfo `json:"voted"`
	NotVoted      []VoterInfo `json:"notVoted"`
}

// VoteService 负责投票写入和计票
type VoteService struct {
	db      *gorm.DB
	results *cache.ResultsCache
}

// NewVoteService 创建投票服务
func NewVoteService(db *gorm.DB, results *cache.ResultsCache) *VoteService {
	return &VoteService{db: db, results: results}
}

// CastVote 投出一票。选民解析、重复投票检查、选举状态检查、候选人
// 归属检查和选票写入在同一个事务里执行，并发的updateStatus/finalize
// 不可能插在状态检查和写入之间。重复投票由(voter_id, election_id)
// 唯一索引在写入时兜底：并发请求同时通过了应用层检查时，
// 后提交的一方会撞到唯一约束并转换成AlreadyVoted。
func (s *VoteService) CastVote(ctx context.Context, phone string, electionID, nomineeID uint) (*models.Vote, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var voter models.Voter
	if err := tx.Where("phone = ?", phone).First(&voter).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 正常签发的会话不该出现，防御性检查
			return nil, ErrVoterNotFound
		}
		return nil, err
	}

	var existing int64
	if err := tx.Model(&models.Vote{}).
		Where("voter_id = ? AND election_id = ?", voter.ID, electionID).
		Count(&existing).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if existing > 0 {
		tx.Rollback()
		return nil, ErrAlreadyVoted
	}

	// 锁定选举行再读状态。MySQL的REPEATABLE READ下普通快照读
	// 看不到并发finalize/updateStatus提交的CLOSED，选票会落进
	// 已关闭的选举；FOR UPDATE强制和关闭操作排队
	var election models.Election
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&election, electionID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrElectionNotFound
		}
		return nil, err
	}
	if election.Status != models.StatusOngoing {
		tx.Rollback()
		return nil, ErrElectionClosed
	}

	// 候选人必须属于这次选举，跨选举的nomineeId一律拒绝
	var nominee models.Nominee
	if err := tx.Where("id = ? AND election_id = ?", nomineeID, electionID).
		First(&nominee).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNomineeNotFound
		}
		return nil, err
	}

	vote := models.Vote{
		VoterID:    voter.ID,
		ElectionID: electionID,
		NomineeID:  nomineeID,
		CastAt:     time.Now(),
	}
	if err := tx.Create(&vote).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyVoted
		}
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.results.Invalidate(ctx, electionID)
	log.Printf("选票已记录: voter=%d election=%d nominee=%d", voter.ID, electionID, nomineeID)
	return &vote, nil
}

// ElectionResults 按候选人顺序（而不是得票数）返回逐个候选人的票数
func (s *VoteService) ElectionResults(ctx context.Context, electionID uint) ([]NomineeResult, error) {
	var cached []NomineeResult
	if err := s.results.Get(ctx, electionID, &cached); err == nil {
		return cached, nil
	}

	var election models.Election
	if err := s.db.WithContext(ctx).Preload("Nominees", nomineesInOrder).First(&election, electionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrElectionNotFound
		}
		return nil, err
	}

	results := make([]NomineeResult, 0, len(election.Nominees))
	for _, nominee := range election.Nominees {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Vote{}).
			Where("nominee_id = ?", nominee.ID).Count(&count).Error; err != nil {
			return nil, err
		}
		results = append(results, NomineeResult{
			NomineeID: nominee.ID,
			Name:      nominee.Name,
			VoteCount: count,
		})
	}

	if err := s.results.Set(ctx, electionID, results); err != nil && !errors.Is(err, cache.ErrRedisNotAvailable) {
		log.Printf("写入结果缓存失败: %v", err)
	}

	return results, nil
}

// Statistics 把完整资格名单按是否在这次选举投过票分成两组
func (s *VoteService) Statistics(ctx context.Context, electionID uint) (*VotingStatistics, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Election{}).
		Where("id = ?", electionID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrElectionNotFound
	}

	var roster []models.EligibleVoter
	if err := s.db.WithContext(ctx).Order("id").Find(&roster).Error; err != nil {
		return nil, err
	}

	var totalVoted int64
	if err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("election_id = ?", electionID).Count(&totalVoted).Error; err != nil {
		return nil, err
	}

	// 这次选举里投过票的手机号集合
	var votedPhones []string
	if err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Joins("JOIN voters ON voters.id = votes.voter_id").
		Where("votes.election_id = ?", electionID).
		Pluck("voters.phone", &votedPhones).Error; err != nil {
		return nil, err
	}
	votedSet := make(map[string]struct{}, len(votedPhones))
	for _, phone := range votedPhones {
		votedSet[phone] = struct{}{}
	}

	stats := &VotingStatistics{
		TotalEligible: int64(len(roster)),
		TotalVoted:    totalVoted,
		Voted:         []VoterInfo{},
		NotVoted:      []VoterInfo{},
	}
	for _, voter := range roster {
		info := VoterInfo{Phone: voter.PhoneNumber, Name: voter.Name}
		if _, ok := votedSet[voter.PhoneNumber]; ok {
			stats.Voted = append(stats.Voted, info)
		} else {
			stats.NotVoted = append(stats.NotVoted, info)
		}
	}
	return stats, nil
}
