package main

import (
	"log"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/config"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/infra/mq"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/infra/redis"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/logger"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/repository/mysql"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/server"
)

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
		// 没有 Redis 也能跑，只是少了缓存和重投抑制
		zap.L().Warn("redis unavailable, running without cache", zap.Error(err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	mqConn, err := mq.Dial(&cfg.RabbitMQ)
	if err != nil {
		zap.L().Warn("rabbitmq unavailable, sync trigger disabled", zap.Error(err))
		mqConn = nil
	}
	defer func() {
		if mqConn != nil {
			_ = mqConn.Close()
		}
	}()

	app := iris.New()
	server.RegisterRoutes(app, cfg, &server.Deps{
		DB:     db,
		Redis:  redisClient,
		MQConn: mqConn,
	})

	addr := cfg.Server.Addr()
	zap.L().Info("web server listening", zap.String("addr", addr))
	if err := app.Run(iris.Addr(addr)); err != nil {
		zap.L().Fatal("failed to run web server", zap.Error(err))
	}
}
