package mysql

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/config"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/conversation"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/message"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/datamodels/syncevent"
)

// Open 建立 GORM 连接并自动迁移表结构。句柄由调用方持有并在进程退出时 Close。
// TranslateError 打开后，唯一键冲突统一表现为 gorm.ErrDuplicatedKey。
func Open(cfg *config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 迁移全部模型
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&conversation.Conversation{},
		&message.Message{},
		&syncevent.SyncEvent{},
	)
}

// Close 关闭底层连接池
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
