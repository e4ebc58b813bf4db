package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"nhlbot/internal/app"
	"nhlbot/internal/config"
	"nhlbot/pkg/logx"
)

const tokenEnv = "NHLBOT_TELEGRAM_TOKEN"

func main() {
	var (
		cfgPath     string
		envFile     string
		stopTimeout time.Duration
	)
	flag.StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (yaml or json)")
	flag.StringVar(&envFile, "env-file", ".env", "optional dotenv file")
	flag.DurationVar(&stopTimeout, "stop-timeout", 15*time.Second, "graceful shutdown budget")
	flag.Parse()

	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		fmt.Println("fatal: env file:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfgm := config.NewManager(cfgPath, logx.NewConsole("info"))
	if tok := strings.TrimSpace(os.Getenv(tokenEnv)); tok != "" {
		cfgm.SetOverlay(func(c *config.Config) { c.Telegram.Token = tok })
	}
	if _, err := cfgm.Load(); err != nil {
		fmt.Println("fatal config:", err)
		os.Exit(1)
	}

	a, err := app.New(cfgm)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		_ = a.Stop(stopCtx)
		stopCancel()
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	_ = a.Stop(stopCtx)
	if err := a.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
