package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"ntro-voting-backend/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是全局数据库连接
var DB *gorm.DB

// InitDB 初始化数据库连接并迁移模型
func InitDB() error {
	// 配置GORM日志
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  logger.Info,
			IgnoreRecordNotFoundError: true, // 忽略ErrRecordNotFound错误
			Colorful:                  true,
		},
	)

	// 从环境变量获取MySQL数据库配置
	dbUser := getEnv("DB_USER", "ntrovote")
	dbPassword := getEnv("DB_PASSWORD", "ntrovote")
	dbHost := getEnv("DB_HOST", "mysql")
	dbPort := getEnv("DB_PORT", "3306")
	dbName := getEnv("DB_NAME", "ntrovotedb")

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		dbUser, dbPassword, dbHost, dbPort, dbName)

	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: newLogger,
		// 唯一约束冲突需要翻译成gorm.ErrDuplicatedKey，
		// 投票去重依赖这个判断
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("连接数据库失败: %v", err)
	}

	if err := Migrate(DB); err != nil {
		return fmt.Errorf("迁移模型失败: %v", err)
	}

	log.Println("数据库连接和迁移成功")
	return nil
}

// Migrate 迁移全部模型
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.EligibleVoter{},
		&models.OtpChallenge{},
		&models.Voter{},
		&models.Admin{},
		&models.Election{},
		&models.Nominee{},
		&models.Vote{},
	)
}

// CloseDB 关闭数据库连接
func CloseDB() {
	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("获取数据库连接失败: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("关闭数据库连接失败: %v", err)
		return
	}

	log.Println("数据库连接已关闭")
}

// getEnv 获取环境变量值或使用默认值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
