package main

import (
	"github.com/wfunc/rpgserver/ai"
	"github.com/wfunc/rpgserver/broadcast"
	"github.com/wfunc/rpgserver/config"
	"github.com/wfunc/rpgserver/executor"
	"github.com/wfunc/rpgserver/lifecycle"
	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/monitor"
	"github.com/wfunc/rpgserver/persistence"
	"github.com/wfunc/rpgserver/registry"
	"github.com/wfunc/rpgserver/server"
	"github.com/wfunc/rpgserver/services"
	"github.com/wfunc/rpgserver/session"
	"github.com/wfunc/rpgserver/sim"
	"github.com/wfunc/rpgserver/timer"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	db, err := persistence.NewGormPostgreSQL(
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.DBName,
	)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Info("Database connection successful.")

	// 定时器与 socket 管理
	timers := timer.NewTimerManager()
	defer timers.Stop()

	sockets := session.NewManager()
	broadcaster := broadcast.NewGameBroadcaster(sockets)

	// 会话注册表与生命周期
	reg := registry.NewRegistry(db, timers, cfg.Game.EvictionGrace)
	lifecycleManager := lifecycle.NewManager(reg, db, broadcaster, sockets,
		cfg.Game.MaxSessions, int(cfg.Game.DefaultTurnTimeLimit.Seconds()))

	// 模拟引擎与动作执行器
	engine := sim.NewTacticalEngine()
	exec := executor.NewExecutor(reg, db, engine, broadcaster, timers, lifecycleManager, cfg.Game.AIThinkDelay)
	lifecycleManager.SetInitializer(exec)

	aiController := ai.NewController(reg, exec, engine)
	exec.SetAIController(aiController)

	characterService := services.NewCharacterService(db)

	// 监控
	mon := monitor.NewMonitor("rpgserver")
	lifecycleManager.SetMetrics(mon)
	aiController.SetMetrics(mon)
	if cfg.Server.MonitorAddress != "" {
		mon.StartServer(cfg.Server.MonitorAddress)
	}

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, cfg.Server.RPCAddress, server.Deps{
		Sockets:     sockets,
		Registry:    reg,
		Lifecycle:   lifecycleManager,
		Executor:    exec,
		Characters:  characterService,
		Broadcaster: broadcaster,
		Auth:        server.DevAuthenticator{},
		Monitor:     mon,
	})

	// Start Server
	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
