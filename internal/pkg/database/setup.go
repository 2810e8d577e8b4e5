package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/memoryrouter/dashboard/app/models"
	"github.com/memoryrouter/dashboard/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// DB is the process-wide connection, set by SetupDatabase.
var DB *gorm.DB

// GetDB returns the database handle, or nil before SetupDatabase.
func GetDB() *gorm.DB {
	return DB
}

// DSN builds the MySQL data source name from the environment.
func DSN() string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// Models lists every table the service owns, in dependency order.
func Models() []any {
	return []any{
		&models.User{},
		&models.RefreshToken{},
		&models.BillingProfile{},
		&models.CreditLedgerEntry{},
		&models.BillingWebhookEvent{},
	}
}

// SetupDatabase connects with retries and brings the schema up to date.
// It returns an error instead of panicking so the caller decides how to exit.
func SetupDatabase() error {
	gormCfg := &gorm.Config{}
	if !env.IsDev() {
		gormCfg.Logger = logger.Default.LogMode(logger.Warn)
	}

	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       DSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), gormCfg)
		if err == nil {
			if env.GetEnv("DB_AUTOMIGRATE", "true") == "true" {
				if err := DB.AutoMigrate(Models()...); err != nil {
					return fmt.Errorf("auto migrate: %w", err)
				}
			}
			log.Infof("[Database] connected")
			return nil
		}

		log.Warnf("[Database] failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	return fmt.Errorf("connect database: %w", err)
}
