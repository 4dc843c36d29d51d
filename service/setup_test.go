package service

import (
	"fmt"
	"sync/atomic"
	"testing"

	"ntro-voting-backend/database"
	"ntro-voting-backend/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter int64

// setupTestDB opens an isolated in-memory SQLite database for one test.
// TranslateError is on so unique-constraint violations surface as
// gorm.ErrDuplicatedKey, same as the MySQL setup in production.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:svc_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	// A single connection serializes concurrent transactions, which keeps
	// SQLite from returning busy errors in concurrency tests.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

// fixedCodeSource returns the same code every time.
type fixedCodeSource struct {
	code string
}

func (f fixedCodeSource) Code() (string, error) {
	return f.code, nil
}

// recordingNotifier captures dispatched messages; fail makes Send error.
type recordingNotifier struct {
	sent []string
	fail bool
}

func (n *recordingNotifier) Send(phone, message string) error {
	if n.fail {
		return fmt.Errorf("gateway unavailable")
	}
	n.sent = append(n.sent, phone+": "+message)
	return nil
}

// stubTokenIssuer mints predictable tokens.
type stubTokenIssuer struct{}

func (stubTokenIssuer) Mint(subject, role string) (string, error) {
	return "token:" + subject + ":" + role, nil
}

// failingTokenIssuer always errors, simulating a broken signer.
type failingTokenIssuer struct{}

func (failingTokenIssuer) Mint(subject, role string) (string, error) {
	return "", fmt.Errorf("signer unavailable")
}

func seedEligible(t *testing.T, db *gorm.DB, phone, name string) {
	t.Helper()
	if err := db.Create(&models.EligibleVoter{PhoneNumber: phone, Name: name}).Error; err != nil {
		t.Fatalf("Failed to seed eligible voter: %v", err)
	}
}

func seedVoter(t *testing.T, db *gorm.DB, phone string) models.Voter {
	t.Helper()
	voter := models.Voter{Phone: phone}
	if err := db.Create(&voter).Error; err != nil {
		t.Fatalf("Failed to seed voter: %v", err)
	}
	return voter
}

// seedElection creates an election with the given nominee names and
// returns it with nominees loaded in insertion order.
func seedElection(t *testing.T, db *gorm.DB, title string, nomineeNames ...string) models.Election {
	t.Helper()
	election := models.Election{Title: title, Status: models.StatusOngoing}
	if err := db.Create(&election).Error; err != nil {
		t.Fatalf("Failed to seed election: %v", err)
	}
	for _, name := range nomineeNames {
		nominee := models.Nominee{ElectionID: election.ID, Name: name}
		if err := db.Create(&nominee).Error; err != nil {
			t.Fatalf("Failed to seed nominee: %v", err)
		}
		election.Nominees = append(election.Nominees, nominee)
	}
	return election
}
