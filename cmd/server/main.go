package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"drchat/internal/bootstrap"
	"drchat/internal/config"
	"drchat/internal/repository/user"
	"drchat/internal/service/server"
	"drchat/internal/utils/log"
)

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "Relay for drchat clients",
	Long:         "Serves public key bundles and forwards encrypted frames between connected users, queueing frames for users that are offline.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		if err := log.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mongoClient, db, err := bootstrap.Mongo(ctx, cfg.Mongo)
		if err != nil {
			return err
		}
		defer mongoClient.Disconnect(context.Background())

		redis, err := bootstrap.Redis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redis.Close()

		userRepo := user.NewUserRepo(db)
		if err := userRepo.EnsureIndexes(ctx); err != nil {
			log.Warn("create user index failed", zap.Error(err))
		}

		s := server.NewHttpServer(cfg.Server.Addr, cfg.Server.RateLimit, userRepo, redis)
		if err := s.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		log.Info("relay stopped")
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	rootCmd.Flags().String("addr", "", "listen address")
	rootCmd.Flags().Int("rate-limit", 0, "frames per second accepted from one connection")
	rootCmd.Flags().String("log-level", "", "debug, info, warn or error")

	bind("server.addr", "addr")
	bind("server.rate_limit", "rate-limit")
	bind("log.level", "log-level")
}

func bind(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
