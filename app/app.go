package app

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"Gin_postgres_redis_loan_approval/cart"
	"Gin_postgres_redis_loan_approval/db"
	"Gin_postgres_redis_loan_approval/notify"
	"Gin_postgres_redis_loan_approval/session"
	"Gin_postgres_redis_loan_approval/workflow"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Config Config

	Repo     *db.Repo
	Hub      *notify.Hub
	Workflow *workflow.Service
	Cart     *cart.Cart

	appSess *session.AppSessionStore
}

// Config 从环境变量读取
type Config struct {
	DatabaseURL  string
	RedisAddr    string
	RedisPwd     string
	WebOrigin    string
	Port         string
	SessionTTL   time.Duration
	AdminEmails  []string
	IdPSecret    string
	LetterPrefix string
	CartTTL      time.Duration
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

func MustNew() *App {
	cfg := loadConfig()

	// --- DB: Postgres（连接时已迁移）---
	dbConn := db.ConnectDB(cfg.DatabaseURL)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}
	if cfg.IdPSecret == "" {
		log.Printf("[BOOTSTRAP] IDP_JWT_SECRET is empty, logins will be refused")
	}

	a := New(cfg, dbConn, rdb)
	BootstrapAdmins(ctx, cfg, a.Repo)
	return a
}

// New wires the services over already opened connections.
func New(cfg Config, dbConn *gorm.DB, rdb *redis.Client) *App {
	repo := db.NewRepo(dbConn)
	hub := notify.NewHub(repo, rdb)
	wf := workflow.NewService(repo, hub, workflow.Options{LetterPrefix: cfg.LetterPrefix})

	r := gin.Default()
	useCORS(r, cfg.WebOrigin)
	return &App{
		Router: r, DB: dbConn, RDB: rdb, Config: cfg,
		Repo:     repo,
		Hub:      hub,
		Workflow: wf,
		Cart:     cart.New(rdb, wf, cfg.CartTTL),
		appSess:  session.NewAppSessionStore(rdb, cfg.SessionTTL),
	}
}

func (a *App) Close() { _ = a.RDB.Close() }

func loadConfig() Config {
	get := func(k, def string) string {
		v := os.Getenv(k)
		if v == "" {
			return def
		}
		return v
	}
	// 业务会话：默认 1 天
	ttl := 24 * time.Hour
	if n, err := strconv.Atoi(get("SESSION_TTL_SECONDS", "86400")); err == nil && n > 0 {
		ttl = time.Duration(n) * time.Second
	}
	cartTTL := cart.DefaultTTL
	if n, err := strconv.Atoi(os.Getenv("CART_TTL_HOURS")); err == nil && n > 0 {
		cartTTL = time.Duration(n) * time.Hour
	}
	adminsCSV := os.Getenv("ADMIN_EMAILS") // 例如: "admin@school.id,tu@school.id"
	var admins []string
	for _, s := range strings.Split(adminsCSV, ",") {
		if t := strings.TrimSpace(s); t != "" {
			admins = append(admins, strings.ToLower(t))
		}
	}
	return Config{
		DatabaseURL:  db.DSNFromEnv(),
		RedisAddr:    get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:     os.Getenv("REDIS_PASSWORD"),
		WebOrigin:    get("WEB_ORIGIN", "http://localhost:5173"),
		Port:         get("PORT", "3001"),
		SessionTTL:   ttl,
		AdminEmails:  admins,
		IdPSecret:    os.Getenv("IDP_JWT_SECRET"),
		LetterPrefix: get("LETTER_PREFIX", workflow.DefaultLetterPrefix),
		CartTTL:      cartTTL,
	}
}
