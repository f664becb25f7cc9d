package config

import (
	"fmt"
	"log"

	"reev-api/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// DSN builds the MySQL data source name. clientFoundRows makes conditional
// updates report matched rows, which the submission claim relies on.
func (s *Settings) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true",
		s.DBUsername,
		s.DBPassword,
		s.DBHost,
		s.DBPort,
		s.DBDatabase,
	)
}

func InitDB(settings *Settings) {
	var err error

	// In production, suppress SQL logs unless explicitly re-enabled via DEBUG_SQL=true.
	logLevel := logger.Info
	if settings.IsProduction() && !settings.DebugSQL {
		logLevel = logger.Warn
	}

	config := &gorm.Config{
		Logger: logger.New(
			log.New(LogWriter, "\r\n", log.LstdFlags),
			logger.Config{LogLevel: logLevel},
		),
		TranslateError: true,
	}

	DB, err = gorm.Open(mysql.Open(settings.DSN()), config)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if settings.DBMigrate {
		if err := models.AutoMigrate(DB); err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("Database schema migrated")
	}

	log.Println("Database connected successfully")
}
