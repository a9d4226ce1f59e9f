package redis

import (
	radix "github.com/mediocregopher/radix/v3"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/config"
)

// Dial 建立 Redis 连接池。句柄由调用方持有，进程退出时 Close。
func Dial(cfg *config.RedisConfig) (radix.Client, error) {
	return radix.NewPool("tcp", cfg.Addr, 10)
}
