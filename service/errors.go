package service

import "errors"

// 业务错误定义。这些错误是调用方可恢复的领域错误，原样传到HTTP边界，
// 不同错误不能混淆（比如InvalidOtp和OtpExpired要能区分，前端据此提示重发）。
var (
	ErrNotEligible        = errors.New("phone number not eligible to vote")
	ErrInvalidOtp         = errors.New("invalid OTP")
	ErrOtpExpired         = errors.New("OTP expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrVoterNotFound      = errors.New("voter not found")
	ErrAlreadyVoted       = errors.New("already voted in this election")
	ErrElectionNotFound   = errors.New("election not found")
	ErrElectionClosed     = errors.New("election is closed")
	ErrNomineeNotFound    = errors.New("nominee not found")
	ErrAlreadyFinalized   = errors.New("election already finalized")
	ErrAlreadyEligible    = errors.New("voter already eligible")
)

// TokenIssuer 会话令牌签发接口。核心不关心令牌内部结构。
type TokenIssuer interface {
	Mint(subject, role string) (string, error)
}

// Notifier 通知下发接口（短信网关/分发队列）
type Notifier interface {
	Send(phone, message string) error
}
