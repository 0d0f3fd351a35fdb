package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"drchat/internal/bootstrap"
	"drchat/internal/config"
	"drchat/internal/protocol/doubleratchet"
	"drchat/internal/repository/session"
	"drchat/internal/repository/user"
	"drchat/internal/service/app"
	"drchat/internal/utils/log"
)

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:          "client <username> [recipient]",
	Short:        "End-to-end encrypted terminal chat",
	Args:         cobra.RangeArgs(1, 2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		// The TUI owns the terminal, so logs only go out in development mode.
		if cfg.Log.Development {
			if err := log.Init(cfg.Log.Level, true); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()
		}

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

		suite, err := doubleratchet.NewSuite(cfg.Ratchet.Cipher)
		if err != nil {
			return err
		}

		var to string
		if len(args) == 2 {
			to = args[1]
		}

		a := app.NewApp(cfg.Server.Addr, suite, cfg.Ratchet.Config(),
			user.NewUserRepo(db), session.NewSessionRepo(redis, cfg.Session.TTL))
		return a.Run(ctx, args[0], to)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	rootCmd.Flags().String("server", "", "relay address")
	rootCmd.Flags().String("cipher", "", "aes-gcm or chacha20-poly1305")

	bind("server.addr", "server")
	bind("ratchet.cipher", "cipher")
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
