package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"recharge-sync/partner"
	"recharge-sync/service"
)

// Prober 上游连通性探测，测试里用假实现
type Prober interface {
	TestConnection(ctx context.Context) (*partner.ConnectionStatus, error)
}

// Handler 充值特征同步相关的路由处理器
type Handler struct {
	syncer *service.Syncer
	store  *service.Store
	prober Prober
}

func NewHandler(syncer *service.Syncer, store *service.Store, prober Prober) *Handler {
	return &Handler{
		syncer: syncer,
		store:  store,
		prober: prober,
	}
}

func (h *Handler) RechargeSyncGroup(g *gin.Engine) {
	rg := g.Group("/recharge-sync")
	{
		rg.POST("sync", h.Sync)
		rg.POST("batch-sync", h.BatchSync)
		rg.POST("resync/:uid", h.Resync)
		rg.POST("sync-direct", h.SyncDirect)
		rg.GET("list", h.List)
		rg.GET("user/:uid", h.GetByUID)
		rg.DELETE("user/:uid", h.DeleteByUID)
		rg.GET("stats", h.Stats)
		rg.GET("test/connection", h.TestConnection)
	}
}

// 统一响应信封，业务码放在 code 字段里
func respond(ctx *gin.Context, code int, message string, data interface{}) {
	ctx.JSON(http.StatusOK, gin.H{
		"code":    code,
		"message": message,
		"data":    data,
	})
}

func badRequest(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusBadRequest, gin.H{
		"code":    http.StatusBadRequest,
		"message": message,
		"data":    nil,
	})
}

func outcomeResponse(ctx *gin.Context, out *service.Outcome) {
	code := http.StatusOK
	if !out.Success {
		code = http.StatusInternalServerError
	}
	respond(ctx, code, out.Message, gin.H{
		"syncedCount": out.SyncedCount,
		"failedCount": out.FailedCount,
		"details":     out.Details,
	})
}

func (h *Handler) Sync(ctx *gin.Context) {
	var req service.SyncRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request body")
		return
	}

	out, err := h.syncer.Sync(ctx.Request.Context(), req.UserIds)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}

	outcomeResponse(ctx, out)
}

func (h *Handler) BatchSync(ctx *gin.Context) {
	var req service.BatchSyncRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request body")
		return
	}

	out, err := h.syncer.BatchSync(ctx.Request.Context(), req.UserIds)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}

	outcomeResponse(ctx, out)
}

func (h *Handler) Resync(ctx *gin.Context) {
	uid, err := strconv.ParseInt(ctx.Param("uid"), 10, 64)
	if err != nil {
		badRequest(ctx, "invalid uid")
		return
	}

	out, err := h.syncer.Resync(ctx.Request.Context(), uid)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}

	code := http.StatusOK
	if !out.Success {
		code = http.StatusInternalServerError
	}
	respond(ctx, code, out.Message, gin.H{
		"syncedCount": out.SyncedCount,
		"failedCount": out.FailedCount,
	})
}

func (h *Handler) SyncDirect(ctx *gin.Context) {
	var req service.DirectSyncRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request body")
		return
	}

	out, err := h.syncer.SyncDirect(ctx.Request.Context(), req.UserIds, req.Token)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}

	outcomeResponse(ctx, out)
}

func (h *Handler) List(ctx *gin.Context) {
	q, err := parseListQuery(ctx)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}

	result, err := h.store.List(ctx.Request.Context(), q)
	if err != nil {
		respond(ctx, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	respond(ctx, http.StatusOK, "ok", result)
}

func (h *Handler) GetByUID(ctx *gin.Context) {
	uid, err := strconv.ParseInt(ctx.Param("uid"), 10, 64)
	if err != nil {
		badRequest(ctx, "invalid uid")
		return
	}

	rec, err := h.store.GetByUID(ctx.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respond(ctx, http.StatusNotFound, "recharge feature not found", nil)
			return
		}
		respond(ctx, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	respond(ctx, http.StatusOK, "ok", rec)
}

func (h *Handler) DeleteByUID(ctx *gin.Context) {
	uid, err := strconv.ParseInt(ctx.Param("uid"), 10, 64)
	if err != nil {
		badRequest(ctx, "invalid uid")
		return
	}

	affected, err := h.store.DeleteByUID(ctx.Request.Context(), uid)
	if err != nil {
		respond(ctx, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if !affected {
		respond(ctx, http.StatusNotFound, "recharge feature not found", nil)
		return
	}

	respond(ctx, http.StatusOK, "deleted", nil)
}

func parseListQuery(ctx *gin.Context) (service.ListQuery, error) {
	var q service.ListQuery

	q.Page, _ = strconv.Atoi(ctx.DefaultQuery("page", "1"))
	q.Limit, _ = strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	q.SyncStatus = ctx.Query("syncStatus")

	if v := ctx.Query("uid"); v != "" {
		uid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return q, errors.New("invalid uid")
		}
		q.UID = &uid
	}
	if v := ctx.Query("isValuableUser"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return q, errors.New("invalid isValuableUser")
		}
		q.IsValuableUser = &b
	}
	if v := ctx.Query("isHundredUser"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return q, errors.New("invalid isHundredUser")
		}
		q.IsHundredUser = &b
	}

	return q, nil
}

func (h *Handler) Stats(ctx *gin.Context) {
	stats, err := h.store.Stats(ctx.Request.Context())
	if err != nil {
		respond(ctx, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	respond(ctx, http.StatusOK, "ok", stats)
}

func (h *Handler) TestConnection(ctx *gin.Context) {
	status, err := h.prober.TestConnection(ctx.Request.Context())
	if err != nil {
		respond(ctx, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	code := http.StatusOK
	if !status.Success {
		code = http.StatusInternalServerError
	}
	respond(ctx, code, status.Message, status)
}
