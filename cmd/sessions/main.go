package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/backnews/admin/internal/config"
	"github.com/backnews/admin/internal/db"
	"github.com/backnews/admin/internal/logging"
	"github.com/backnews/admin/internal/session"
	"github.com/joho/godotenv"
)

// 管理后台会话的维护工具：列出当前会话，或清理过期和闲置的会话。
func main() {
	purge := flag.Bool("purge", false, "delete expired sessions and those idle longer than -idle")
	idle := flag.Duration("idle", 7*24*time.Hour, "idle time after which a session is purged (0 keeps idle sessions)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}
	defer db.Close()

	store := session.NewStore(db.DB, cfg.SessionSecret, logging.Component(logger, "session"))
	ctx := context.Background()

	if *purge {
		n, err := store.Purge(ctx, *idle)
		if err != nil {
			log.Fatal("清理会话失败:", err)
		}
		fmt.Printf("已清理 %d 个会话\n", n)
		return
	}

	active, err := store.Active(ctx)
	if err != nil {
		log.Fatal("读取会话失败:", err)
	}
	if len(active) == 0 {
		fmt.Println("没有活跃的会话")
		return
	}
	for _, s := range active {
		expires := "-"
		if s.ExpiresAt != nil {
			expires = s.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Printf("%s\t%s\t%s\tlast seen %s\texpires %s\n",
			s.ID, s.User.Username, s.User.Role, s.LastSeenAt.Format(time.RFC3339), expires)
	}
}
