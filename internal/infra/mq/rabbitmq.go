package mq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/config"
)

// SyncJobQueue 同步任务队列名
const SyncJobQueue = "sync_jobs"

// Dial 建立 RabbitMQ 连接。句柄由调用方持有，进程退出时 Close。
func Dial(cfg *config.RabbitMQConfig) (*amqp.Connection, error) {
	return amqp.Dial(cfg.URL)
}

// PublishSyncJob 声明队列并投递一条同步任务
func PublishSyncJob(ctx context.Context, conn *amqp.Connection, job interface{}) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(SyncJobQueue, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(
		ctx,
		"",
		SyncJobQueue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}
