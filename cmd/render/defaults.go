package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Backend
	viper.SetDefault("llm.endpoint", "https://router.huggingface.co/v1")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.request_timeout", 90*time.Second)
	viper.SetDefault("llm.retry_attempts", 2)
	viper.SetDefault("llm.retry_base_delay", 500*time.Millisecond)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.typing_interval", 4*time.Second)

	// Store
	viper.SetDefault("store.state_path", "data/state.json")
	viper.SetDefault("store.audit_path", "data/audit.jsonl")
	viper.SetDefault("store.audit_rotate_max_bytes", int64(1024*1024))

	// Admin console
	viper.SetDefault("admin.ids", []string{})
	viper.SetDefault("admin.username", "")
	viper.SetDefault("admin.password", "")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}
