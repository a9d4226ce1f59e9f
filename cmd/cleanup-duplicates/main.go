package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/config"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/logger"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/repository/mysql"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/service"
)

// cleanup-duplicates 扫描库里 external_id 重复的消息组。
// 默认只打印报告，加 -confirm 才真正删除败者并重算会话聚合。
// 针对唯一约束上线前的存量脏数据。
func main() {
	configPath := flag.String("config", "./config", "配置目录")
	confirm := flag.Bool("confirm", false, "确认删除，不带此参数只做干跑")
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	msgRepo := mysql.NewMessageRepository(db)
	cleanup := service.NewCleanupService(db, msgRepo)

	reports, err := cleanup.Purge(ctx, *confirm)
	if err != nil {
		zap.L().Fatal("cleanup failed", zap.Error(err))
	}

	if len(reports) == 0 {
		fmt.Println("no duplicate external ids found")
		return
	}

	mode := "DRY-RUN"
	if *confirm {
		mode = "PURGED"
	}
	for _, r := range reports {
		fmt.Printf("[%s] external_id=%s total=%d survivor=%d losers=%v\n",
			mode, r.ExternalID, r.Total, r.SurvivorID, r.LoserIDs)
	}
	fmt.Printf("%d duplicate groups, %s\n", len(reports), mode)
	if !*confirm {
		fmt.Println("re-run with -confirm to delete the listed losers")
	}
}
