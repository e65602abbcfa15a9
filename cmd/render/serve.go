package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ysnrfd/render/admin"
	"github.com/ysnrfd/render/broadcast"
	"github.com/ysnrfd/render/dispatch"
	"github.com/ysnrfd/render/internal/logutil"
	"github.com/ysnrfd/render/internal/retryutil"
	"github.com/ysnrfd/render/moderation"
	"github.com/ysnrfd/render/providers/openai"
	"github.com/ysnrfd/render/store"
	"github.com/ysnrfd/render/telegram"
)

// restartExitCode tells the supervisor to bring the process back up.
const restartExitCode = 42

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(viper.GetString("telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set via RENDER_TELEGRAM_BOT_TOKEN)")
			}
			apiKey := strings.TrimSpace(viper.GetString("llm.api_key"))
			if apiKey == "" {
				return fmt.Errorf("missing llm.api_key (set via RENDER_LLM_API_KEY)")
			}
			adminUser := strings.TrimSpace(viper.GetString("admin.username"))
			adminPass := viper.GetString("admin.password")
			if adminUser == "" || adminPass == "" {
				return fmt.Errorf("missing admin.username / admin.password (set via RENDER_ADMIN_USERNAME, RENDER_ADMIN_PASSWORD)")
			}
			adminIDs, err := parseAdminIDs(viper.GetStringSlice("admin.ids"))
			if err != nil {
				return err
			}
			if len(adminIDs) == 0 {
				return fmt.Errorf("missing admin.ids (set via RENDER_ADMIN_IDS)")
			}

			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			st := store.Open(viper.GetString("store.state_path"), logger)
			audit := store.NewAuditLog(
				viper.GetString("store.audit_path"),
				viper.GetInt64("store.audit_rotate_max_bytes"),
				logger,
			)
			defer audit.Close()

			policy := moderation.NewPolicy(st, adminIDs)

			httpClient := &http.Client{Timeout: 60 * time.Second}
			api := telegram.NewAPI(httpClient, viper.GetString("telegram.base_url"), token)
			client := openai.New(viper.GetString("llm.endpoint"), apiKey, viper.GetDuration("llm.request_timeout"))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			me, err := api.GetMe(ctx)
			if err != nil {
				return fmt.Errorf("telegram getMe: %w", err)
			}

			disp := dispatch.New(ctx, logger)
			engine := broadcast.NewEngine(api, st, logger)

			restart := func() {
				logger.Info("restart_exit", "code", restartExitCode)
				_ = audit.Close()
				os.Exit(restartExitCode)
			}
			panel := admin.NewPanel(st, audit, policy, api, engine, disp,
				admin.Credentials{Username: adminUser, Password: adminPass}, restart, logger)

			b := &bot{
				api:            api,
				store:          st,
				policy:         policy,
				panel:          panel,
				dispatch:       disp,
				llm:            client,
				logger:         logger,
				pollTimeout:    viper.GetDuration("telegram.poll_timeout"),
				typingInterval: viper.GetDuration("telegram.typing_interval"),
				retry: retryutil.Policy{
					Attempts:  viper.GetInt("llm.retry_attempts"),
					BaseDelay: viper.GetDuration("llm.retry_base_delay"),
				},
			}

			logger.Info("telegram_start",
				"bot_username", me.Username,
				"bot_id", me.ID,
				"poll_timeout", b.pollTimeout.String(),
				"admins", len(adminIDs),
			)
			b.run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := disp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("shutdown_incomplete", "error", err.Error())
			}
			logger.Info("telegram_stop")
			return nil
		},
	}
	return cmd
}

func parseAdminIDs(raw []string) ([]int64, error) {
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin.ids entry %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
