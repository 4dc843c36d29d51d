package service

import (
	"context"
	"errors"
	"log"

	"ntro-voting-backend/auth"
	"ntro-voting-backend/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// 初始管理员账号。首次启动且不存在任何管理员时创建，
// 之后不再检查，生产环境应立即修改密码。
const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "admin123"
)

// AuthService 负责管理员认证和资格名单管理
type AuthService struct {
	db     *gorm.DB
	tokens TokenIssuer
}

// NewAuthService 创建认证服务
func NewAuthService(db *gorm.DB, tokens TokenIssuer) *AuthService {
	return &AuthService{db: db, tokens: tokens}
}

// AdminLogin 管理员登录。用户名不存在和密码错误对调用方不可区分，
// 统一返回InvalidCredentials。
func (s *AuthService) AdminLogin(ctx context.Context, username, password string) (string, error) {
	var admin models.Admin
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	return s.tokens.Mint(username, auth.RoleAdmin)
}

// EnsureInitialAdmin 管理员集合为空时创建默认管理员，幂等
func (s *AuthService) EnsureInitialAdmin(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Admin{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := models.Admin{Username: defaultAdminUsername, PasswordHash: string(hash)}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		// 并发启动的另一个实例可能已创建
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return err
	}

	log.Printf("已创建初始管理员: %s / %s", defaultAdminUsername, defaultAdminPassword)
	return nil
}

// AddEligibleVoter 把号码加入资格名单，已存在时返回冲突错误
func (s *AuthService) AddEligibleVoter(ctx context.Context, phone, name string) (*models.EligibleVoter, error) {
	voter := models.EligibleVoter{PhoneNumber: phone, Name: name}
	if err := s.db.WithContext(ctx).Create(&voter).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyEligible
		}
		return nil, err
	}
	return &voter, nil
}

// RemoveEligibleVoter 把号码移出资格名单
func (s *AuthService) RemoveEligibleVoter(ctx context.Context, phone string) error {
	return s.db.WithContext(ctx).
		Delete(&models.EligibleVoter{}, "phone_number = ?", phone).Error
}

// ListEligibleVoters 列出完整资格名单
func (s *AuthService) ListEligibleVoters(ctx context.Context) ([]models.EligibleVoter, error) {
	var voters []models.EligibleVoter
	if err := s.db.WithContext(ctx).Order("id").Find(&voters).Error; err != nil {
		return nil, err
	}
	return voters, nil
}

// EligiblePhones 返回名单里的所有号码，用于重建布隆过滤器
func (s *AuthService) EligiblePhones(ctx context.Context) ([]string, error) {
	var phones []string
	if err := s.db.WithContext(ctx).Model(&models.EligibleVoter{}).
		Pluck("phone_number", &phones).Error; err != nil {
		return nil, err
	}
	return phones, nil
}
