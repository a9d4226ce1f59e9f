package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/config"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/infra/mq"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/logger"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/repository/mysql"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/service"
)

// sync-all 给库里每个会话投递一条同步任务，由 sync-worker 消费执行。
// 用于全量回填或定时巡检。
func main() {
	configPath := flag.String("config", "./config", "配置目录")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(false)

	db, err := mysql.Open(&cfg.MySQL)
	if err != nil {
		zap.L().Fatal("failed to connect mysql", zap.Error(err))
	}
	defer func() { _ = mysql.Close(db) }()

	mqConn, err := mq.Dial(&cfg.RabbitMQ)
	if err != nil {
		zap.L().Fatal("failed to connect rabbitmq", zap.Error(err))
	}
	defer func() { _ = mqConn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	convRepo := mysql.NewConversationRepository(db)
	convs, err := convRepo.ListAll(ctx)
	if err != nil {
		zap.L().Fatal("failed to list conversations", zap.Error(err))
	}

	published := 0
	for _, conv := range convs {
		job := &service.SyncJob{
			OwnerID:     conv.OwnerID,
			Platform:    conv.Platform,
			ContactID:   conv.ContactID,
			ContactName: conv.ContactName,
		}
		if err := mq.PublishSyncJob(ctx, mqConn, job); err != nil {
			zap.L().Error("failed to publish sync job",
				zap.String("contact_id", conv.ContactID),
				zap.Error(err))
			continue
		}
		published++
	}

	zap.L().Info("sync jobs published",
		zap.Int("total", len(convs)),
		zap.Int("published", published))
}
