package models

import (
	"time"
)

// ElectionStatus is the lifecycle state of an election.
// Stored as a string so the DB rows stay readable.
type ElectionStatus string

const (
	StatusOngoing ElectionStatus = "ONGOING"
	StatusClosed  ElectionStatus = "CLOSED"
)

// EligibleVoter is an allow-list entry. Only phones on this list may
// request an OTP. Managed exclusively by admins.
type EligibleVoter struct {
	ID          uint   `gorm:"primarykey" json:"id"`
	PhoneNumber string `gorm:"uniqueIndex;not null;size:20" json:"phone_number"`
	Name        string `json:"name"`
}

// OtpChallenge is the single outstanding OTP for a phone. The phone is
// the primary key, so re-requesting a code overwrites the previous one.
type OtpChallenge struct {
	Phone     string    `gorm:"primarykey;size:20" json:"phone"`
	Code      string    `gorm:"not null;size:6" json:"code"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
}

// Voter is the stable identity behind a verified phone. Created lazily
// on the first successful OTP verification and never mutated afterwards.
type Voter struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Phone     string    `gorm:"uniqueIndex;not null;size:20" json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Admin is a credentialed administrator account.
type Admin struct {
	ID           uint   `gorm:"primarykey" json:"id"`
	Username     string `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"not null" json:"-"`
}

// Election owns its nominees; deleting an election removes its nominees
// and their votes.
type Election struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	Title           string         `gorm:"not null" json:"title"`
	Description     string         `gorm:"type:text" json:"description"`
	StartAt         *time.Time     `json:"start_at,omitempty"`
	EndAt           *time.Time     `json:"end_at,omitempty"`
	Status          ElectionStatus `gorm:"not null;default:ONGOING;size:10" json:"status"`
	WinnerNomineeID *uint          `json:"winner_nominee_id"`
	Nominees        []Nominee      `gorm:"foreignKey:ElectionID" json:"nominees"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Nominee is a candidate within a single election.
type Nominee struct {
	ID         uint   `gorm:"primarykey" json:"id"`
	ElectionID uint   `gorm:"not null;index" json:"election_id"`
	Name       string `gorm:"not null" json:"name"`
	Details    string `gorm:"type:text" json:"details"`
	ImageURL   string `json:"image_url"`
}

// Vote records one ballot. The composite unique index is the write-time
// guarantee that a voter votes at most once per election; the application
// level check alone is not enough under concurrent requests.
type Vote struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	VoterID    uint      `gorm:"not null;uniqueIndex:idx_votes_voter_election" json:"voter_id"`
	ElectionID uint      `gorm:"not null;uniqueIndex:idx_votes_voter_election" json:"election_id"`
	NomineeID  uint      `gorm:"not null;index" json:"nominee_id"`
	CastAt     time.Time `gorm:"autoCreateTime" json:"cast_at"`
}
