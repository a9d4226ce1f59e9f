package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/config"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/gateway"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/infra/mq"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/infra/redis"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/logger"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/repository/mysql"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/service"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/shard"
)

// sync-worker 消费 sync_jobs 队列，按一致性哈希环判断联系人归属，
// 归属本节点的任务逐页拉取网关历史并落库
func main() {
	cfg, err := config.Load("./config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(false)

	db, err := mysql.Open(&cfg.MySQL)
	if err != nil {
		zap.L().Fatal("failed to connect mysql", zap.Error(err))
	}
	defer func() { _ = mysql.Close(db) }()

	redisClient, err := redis.Dial(&cfg.Redis)
	if err != nil {
		zap.L().Warn("redis unavailable, cursors will not persist", zap.Error(err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	mqConn, err := mq.Dial(&cfg.RabbitMQ)
	if err != nil {
		zap.L().Fatal("failed to connect rabbitmq", zap.Error(err))
	}
	defer func() { _ = mqConn.Close() }()

	convRepo := mysql.NewConversationRepository(db)
	msgRepo := mysql.NewMessageRepository(db)
	eventRepo := mysql.NewSyncEventRepository(db)

	convSvc := service.NewConversationService(convRepo, redisClient)
	dedupSvc := service.NewDedupService(msgRepo)
	writer := service.NewReconcileService(db, dedupSvc, &cfg.Retry)
	source := gateway.NewHTTPSource(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	syncSvc := service.NewSyncService(convSvc, convRepo, eventRepo, writer, source, redisClient, &cfg.Sync)

	ring := shard.NewRing(cfg.Sync.Nodes, cfg.Sync.HashReplicas)

	ch, err := mqConn.Channel()
	if err != nil {
		zap.L().Fatal("failed to open channel", zap.Error(err))
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(mq.SyncJobQueue, true, false, false, false, nil); err != nil {
		zap.L().Fatal("failed to declare queue", zap.Error(err))
	}
	// 一次只取一条，页级工作已经在服务内部并行
	if err = ch.Qos(1, 0, false); err != nil {
		zap.L().Fatal("failed to set qos", zap.Error(err))
	}

	msgs, err := ch.Consume(mq.SyncJobQueue, "", false, false, false, false, nil)
	if err != nil {
		zap.L().Fatal("failed to consume", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		zap.L().Info("sync worker shutting down")
		cancel()
		_ = ch.Close()
	}()

	zap.L().Info("sync worker started",
		zap.String("node_id", cfg.Sync.NodeID),
		zap.Strings("nodes", cfg.Sync.Nodes))

	for d := range msgs {
		var job service.SyncJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			zap.L().Error("invalid sync job, discarding", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}

		// 同一联系人只由环上归属节点处理，其他节点退回队列
		owner := ring.GetNode(service.NormalizeContactID(job.ContactID))
		if owner != cfg.Sync.NodeID {
			zap.L().Debug("job owned by another node, requeueing",
				zap.String("contact_id", job.ContactID),
				zap.String("owner", owner))
			_ = d.Nack(false, true)
			time.Sleep(200 * time.Millisecond)
			continue
		}

		report, err := syncSvc.SyncContact(ctx, &job)
		if err != nil {
			zap.L().Error("sync run failed",
				zap.String("contact_id", job.ContactID),
				zap.Error(err))
			if ctx.Err() != nil {
				// 进程退出中，任务退回队列待重新消费
				_ = d.Nack(false, true)
				break
			}
			_ = d.Nack(false, false)
			continue
		}

		zap.L().Info("sync job done",
			zap.String("contact_id", job.ContactID),
			zap.Uint64("conversation_id", report.ConversationID),
			zap.Int64("accepted", report.Accepted),
			zap.Int64("superseded", report.Superseded),
			zap.Int64("rejected", report.Rejected),
			zap.Int("item_errors", len(report.Errors)))
		_ = d.Ack(false)
	}
}
