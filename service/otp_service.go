package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"ntro-voting-backend/auth"
	"ntro-voting-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OtpTTL 验证码有效期
const OtpTTL = 5 * time.Minute

// CodeSource 验证码来源抽象，测试时注入固定值保证确定性
type CodeSource interface {
	Code() (string, error)
}

// RandomCodeSource 生成均匀分布的6位数字验证码，保留前导零
type RandomCodeSource struct{}

func (RandomCodeSource) Code() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// OtpService 负责验证码的签发与核验，以及核验成功后的选民建档和令牌签发
type OtpService struct {
	db       *gorm.DB
	codes    CodeSource
	notifier Notifier
	tokens   TokenIssuer
}

// NewOtpService 创建OTP服务
func NewOtpService(db *gorm.DB, codes CodeSource, notifier Notifier, tokens TokenIssuer) *OtpService {
	return &OtpService{db: db, codes: codes, notifier: notifier, tokens: tokens}
}

// RequestChallenge 为合格号码签发验证码。同一号码重复请求时覆盖旧验证码，
// 任意时刻每个号码最多只有一条有效验证码。短信下发失败不影响签发结果，
// 验证码仍然落库，管理员可以查到并人工补发。
func (s *OtpService) RequestChallenge(ctx context.Context, phone string) (*models.OtpChallenge, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.EligibleVoter{}).
		Where("phone_number = ?", phone).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNotEligible
	}

	code, err := s.codes.Code()
	if err != nil {
		return nil, err
	}

	challenge := models.OtpChallenge{
		Phone:     phone,
		Code:      code,
		ExpiresAt: time.Now().Add(OtpTTL),
	}

	// 按主键upsert，覆盖旧验证码的动作对单个号码是原子的
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&challenge).Error; err != nil {
		return nil, err
	}

	if err := s.notifier.Send(phone, "Your NtroVote OTP is: "+code); err != nil {
		// 下发失败只记日志，验证码已持久化
		log.Printf("短信下发失败 %s: %v", phone, err)
	}

	return &challenge, nil
}

// VerifyChallenge 核验验证码。顺序固定：先比对验证码，再检查过期，
// 这样"过期但正确"的验证码会报OtpExpired而不是InvalidOtp。
// 核验成功后删除验证码（单次使用）、幂等建档选民并签发VOTER令牌，
// 整个过程包括签发都在一个事务里完成：签发失败时回滚验证码消费，
// 调用方用同一个验证码重试即可。
func (s *OtpService) VerifyChallenge(ctx context.Context, phone, code string) (string, error) {
	var voter models.Voter
	var token string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var challenge models.OtpChallenge
		if err := tx.First(&challenge, "phone = ?", phone).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidOtp
			}
			return err
		}

		// 严格字节比较，不做任何归一化
		if challenge.Code != code {
			return ErrInvalidOtp
		}

		if time.Now().After(challenge.ExpiresAt) {
			return ErrOtpExpired
		}

		// 删除即消费。删除行数为0说明被并发的核验抢先用掉了
		res := tx.Delete(&models.OtpChallenge{}, "phone = ?", phone)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidOtp
		}

		// 幂等建档：已有选民直接复用，绝不重复创建
		if err := tx.Where("phone = ?", phone).First(&voter).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			voter = models.Voter{Phone: phone}
			if err := tx.Create(&voter).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					// 并发首次核验撞到唯一索引，读回已有记录
					return tx.Where("phone = ?", phone).First(&voter).Error
				}
				return err
			}
			log.Printf("创建新选民: %s", phone)
		}

		var mintErr error
		token, mintErr = s.tokens.Mint(phone, auth.RoleVoter)
		return mintErr
	})
	if err != nil {
		return "", err
	}

	return token, nil
}

// ListChallenges 列出当前所有未消费的验证码，供管理员人工补发
func (s *OtpService) ListChallenges(ctx context.Context) ([]models.OtpChallenge, error) {
	var challenges []models.OtpChallenge
	if err := s.db.WithContext(ctx).Order("expires_at desc").Find(&challenges).Error; err != nil {
		return nil, err
	}
	return challenges, nil
}
