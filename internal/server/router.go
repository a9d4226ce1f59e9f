package server

import (
	"io"
	"strconv"
	"time"

	"github.com/kataras/iris/v12"
	radix "github.com/mediocregopher/radix/v3"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/auth"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/config"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/gateway"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/infra/mq"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/middleware"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/repository/mysql"
	"github.com/kuncoroatmojo/wa-cs-agent-sub001/internal/service"
)

// Deps 路由依赖，由 cmd/web 构造后传入
type Deps struct {
	DB     *gorm.DB
	Redis  radix.Client
	MQConn *amqp.Connection
}

// RegisterRoutes 注册所有 HTTP 路由
func RegisterRoutes(app *iris.Application, cfg *config.Config, deps *Deps) {
	convRepo := mysql.NewConversationRepository(deps.DB)
	msgRepo := mysql.NewMessageRepository(deps.DB)
	eventRepo := mysql.NewSyncEventRepository(deps.DB)

	convSvc := service.NewConversationService(convRepo, deps.Redis)
	dedupSvc := service.NewDedupService(msgRepo)
	writer := service.NewReconcileService(deps.DB, dedupSvc, &cfg.Retry)
	ingestSvc := service.NewIngestService(convSvc, writer, msgRepo, eventRepo, deps.Redis, cfg.Admin.Username, &cfg.Webhook)
	tokenCache := auth.NewTokenCache(deps.Redis, time.Duration(cfg.Admin.TokenCacheTTLSeconds)*time.Second)

	// 健康检查
	app.Get("/api/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "msg": "ok"})
	})

	// 网关 webhook 入口：一事件一应答，请求内同步处理
	webhook := app.Party("/webhook", middleware.WebhookRateLimit())
	webhookHandler := func(ctx iris.Context) {
		if cfg.Webhook.Token != "" && ctx.GetHeader("X-Webhook-Token") != cfg.Webhook.Token {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "invalid webhook token"})
			return
		}
		platform := ctx.Params().GetStringDefault("platform", cfg.Webhook.DefaultPlatform)

		body, err := io.ReadAll(ctx.Request().Body)
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		ev, err := gateway.ParseEvent(body)
		if err != nil {
			service.GetMonitor().RecordMalformed()
			zap.L().Warn("malformed webhook event", zap.Error(err))
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		result, err := ingestSvc.HandleEvent(ctx.Request().Context(), platform, ev)
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": result})
	}
	webhook.Post("/{platform:string}", webhookHandler)
	webhook.Post("/", webhookHandler)

	api := app.Party("/api")

	// 管理登录
	api.Post("/login", func(ctx iris.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if req.Username != cfg.Admin.Username || req.Password != cfg.Admin.Password {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "用户名或密码错误"})
			return
		}
		token, err := auth.GenerateToken(&cfg.JWT, req.Username, "admin")
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{"token": token}})
	})

	// 需要登录的接口
	authAPI := api.Party("/", func(ctx iris.Context) {
		token := ctx.GetHeader("Authorization")
		if token == "" {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "missing token"})
			return
		}
		claims, hit, _ := tokenCache.Get(ctx.Request().Context(), token)
		if !hit {
			var err error
			claims, err = auth.ParseToken(&cfg.JWT, token)
			if err != nil {
				ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "invalid token"})
				return
			}
			_ = tokenCache.Set(ctx.Request().Context(), token, claims)
		}
		ctx.Values().Set("username", claims.Username)
		ctx.Next()
	})

	// 会话列表
	authAPI.Get("/conversations", func(ctx iris.Context) {
		list, err := convRepo.ListAll(ctx.Request().Context())
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	// 会话消息列表
	authAPI.Get("/conversations/{id:uint64}/messages", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		afterID, _ := strconv.ParseUint(ctx.URLParam("after_id"), 10, 64)
		limit, _ := ctx.URLParamInt("limit")
		list, err := msgRepo.ListByConversation(ctx.Request().Context(), id, afterID, limit)
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	// 触发联系人历史同步：投 MQ，由 sync-worker 消费
	authAPI.Post("/sync/{contact:string}", func(ctx iris.Context) {
		if deps.MQConn == nil {
			ctx.StopWithJSON(503, iris.Map{"code": 503, "msg": "sync queue unavailable"})
			return
		}
		job := &service.SyncJob{
			OwnerID:   cfg.Admin.Username,
			Platform:  cfg.Webhook.DefaultPlatform,
			ContactID: ctx.Params().Get("contact"),
		}
		if err := mq.PublishSyncJob(ctx.Request().Context(), deps.MQConn, job); err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "queued"})
	})

	// 近期事件审计
	authAPI.Get("/sync/events", func(ctx iris.Context) {
		limit, _ := ctx.URLParamInt("limit")
		list, err := eventRepo.ListRecent(ctx.Request().Context(), limit)
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	// 监控快照
	authAPI.Get("/monitor", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "data": service.GetMonitor().Snapshot()})
	})
}
