package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

type Option func(*gin.Engine)

// groupInit 组装http router engine
func groupInit(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog())

	for _, opt := range []Option{h.RechargeSyncGroup} {
		opt(r)
	}

	return r
}

// Run 启动http server，ctx取消后优雅关闭
func Run(ctx context.Context, addr string, h *Handler) error {
	server := &http.Server{
		Addr:    addr,
		Handler: groupInit(h),
	}

	go func() {
		log.Info("http server listening", "addr", addr)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
			return
		}
	}()

	<-ctx.Done()

	return server.Shutdown(context.Background())
}
