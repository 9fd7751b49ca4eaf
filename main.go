package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"recharge-sync/api"
	"recharge-sync/config"
	"recharge-sync/db"
	"recharge-sync/partner"
	"recharge-sync/service"
)

func main() {
	err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	conf := config.GetConfigInstance()
	gdb := db.GetGormDb()

	session := partner.NewSession(conf.Partner)
	client := partner.NewClient(conf.Partner, session)
	store := service.NewStore(gdb)
	syncer := service.NewSyncer(client, store)
	handler := api.NewHandler(syncer, store, client)
	retry := service.NewRetryTask(syncer, store, conf.Sync.RetryInterval, conf.Sync.RetryBatchLimit)

	ctx, cancel := context.WithCancel(context.Background())
	wp := service.NewWorkerPool(10, ctx, cancel)

	addr := fmt.Sprintf("%s:%d", conf.Server.Host, conf.Server.Port)

	// api 服务
	err = wp.Submit(func(ctx context.Context) error {
		return api.Run(ctx, addr, handler)
	})
	if err != nil {
		log.Error("submit api task", "error", err)
		return
	}

	// 失败记录重试任务
	err = wp.Submit(retry.Run)
	if err != nil {
		log.Error("submit retry task", "error", err)
		return
	}

	wp.Start()

	// 捕捉系统quit信号
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	<-signals

	wp.Stop()
}
