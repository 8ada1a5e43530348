package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/auth"
	"github.com/svenbledt/invoiceninja-vscode/internal/client"
	"github.com/svenbledt/invoiceninja-vscode/internal/config"
	"github.com/svenbledt/invoiceninja-vscode/internal/database"
	"github.com/svenbledt/invoiceninja-vscode/internal/handler"
	"github.com/svenbledt/invoiceninja-vscode/internal/logger"
	"github.com/svenbledt/invoiceninja-vscode/internal/models"
	"github.com/svenbledt/invoiceninja-vscode/internal/reminder"
	"github.com/svenbledt/invoiceninja-vscode/internal/repository"
	"github.com/svenbledt/invoiceninja-vscode/internal/router"
	"github.com/svenbledt/invoiceninja-vscode/internal/server"
	"github.com/svenbledt/invoiceninja-vscode/internal/service"
	"github.com/svenbledt/invoiceninja-vscode/internal/timer"
	"github.com/svenbledt/invoiceninja-vscode/internal/tracker"
	"github.com/svenbledt/invoiceninja-vscode/internal/tray"
)

func main() {
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Invoice Ninja agent",
		zap.String("env", cfg.Env),
		zap.String("config_path", *configPath),
	)

	db, err := database.New(cfg.StoragePath, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	sessionRepo := repository.NewSessionRepository(db.DB)
	timerRepo := repository.NewTimerRepository(db.DB)
	reminderRepo := repository.NewReminderRepository(db.DB)

	apiClient := client.NewAPIClient(time.Duration(cfg.Backend.Timeout)*time.Second, log.Logger)
	authService := auth.NewService(apiClient, sessionRepo, cfg.Backend.DefaultBaseURL, log.Logger)
	taskService := service.NewTaskService(apiClient, cfg.Tasks.DefaultClientID, cfg.Tasks.DefaultProjectID, log.Logger)

	// Workspace tracking feeds the timer; the tracker is created first
	// and the change callback bound after the timer service exists.
	var timerService *timer.Service
	workspaceTracker := tracker.NewWorkspaceTracker(func(label string) {
		if err := timerService.HandleWorkspaceChange(label); err != nil {
			log.Warn("Workspace change not recorded", zap.Error(err))
		}
	}, log.Logger)

	timerService = timer.NewService(
		apiClient,
		timerRepo,
		workspaceTracker.CurrentLabel,
		cfg.Worklog.AutoAppend,
		cfg.Worklog.RetentionDays,
		log.Logger,
	)

	if !cfg.Timer.AutoResume {
		if err := timerService.ClearActiveTimer(); err != nil {
			log.Warn("Failed to clear persisted timer", zap.Error(err))
		} else {
			log.Info("Auto-resume disabled, cleared persisted timer")
		}
	}

	hub := service.NewNotificationHub(time.Duration(cfg.Notifications.ResponseTimeout)*time.Second, log.Logger)

	var agent *service.Agent
	scheduler := reminder.NewScheduler(reminderRepo, hub, func(rem models.TaskReminder) {
		agent.HandleReminderOpen(rem)
	}, log.Logger)

	agent = service.NewAgent(authService, taskService, timerService, scheduler, workspaceTracker, log.Logger)

	if err := scheduler.Restore(); err != nil {
		log.Warn("Failed to restore reminders", zap.Error(err))
	}

	// Warm the task cache when a persisted session exists.
	if session, err := authService.Session(); err == nil && session != nil {
		if err := taskService.Refresh(session, nil); err != nil {
			log.Warn("Initial task refresh failed", zap.Error(err))
		}
	}

	var apiServer *server.Server
	if cfg.Server.Enabled {
		agentHandler := handler.NewAgentHandler(agent, hub, log.Logger)
		apiServer = server.New(cfg.Server.Port, router.New(agentHandler, log.Logger), log.Logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error("Editor API server error", zap.Error(err))
			}
		}()
	} else {
		log.Info("Editor API server disabled in configuration")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Tray.Enabled {
		statusTray := tray.New(
			func() {
				if _, err := agent.StopTimer(""); err != nil {
					log.Warn("Tray stop failed", zap.Error(err))
				}
			},
			func() {
				quit <- syscall.SIGTERM
			},
			log.Logger,
		)
		agent.Start(statusTray.Update)

		// systray.Run must own the main goroutine; shutdown moves to a
		// worker that quits the tray loop when done.
		go func() {
			sig := <-quit
			log.Info("Received shutdown signal", zap.String("signal", sig.String()))
			shutdown(apiServer, agent, scheduler, hub, log)
			statusTray.Quit()
		}()
		statusTray.Run()
		log.Info("Invoice Ninja agent stopped")
		return
	}

	agent.Start(nil)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	shutdown(apiServer, agent, scheduler, hub, log)
	log.Info("Invoice Ninja agent stopped")
}

func shutdown(apiServer *server.Server, agent *service.Agent, scheduler *reminder.Scheduler, hub *service.NotificationHub, log *logger.Logger) {
	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			log.Warn("Editor API shutdown error", zap.Error(err))
		}
	}

	scheduler.Stop()
	hub.Stop()
	agent.Stop()
}
