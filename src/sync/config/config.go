package config

import (
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

type Config struct {
	MySQLDSN   string
	RedisURL   string
	RPCURL     string
	LPContract string
	Port       string
	RetryDelay time.Duration
	LogLevel   string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		if def == "" {
			log.Fatalf("missing env %s", key)
		}
		return def
	}
	return v
}

func Load() Config {
	retryMs, _ := strconv.Atoi(getenv("MINT_RETRY_MS", "5000"))
	return Config{
		MySQLDSN:   getenv("MYSQL_DSN", "pledgesync:pledgesync@tcp(127.0.0.1:3306)/pledgesync?parseTime=true"),
		RedisURL:   getenv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		RPCURL:     getenv("RPC_URL", "ws://127.0.0.1:8546"),
		LPContract: getenv("LP_CONTRACT", ""),
		Port:       getenv("PORT", "8080"),
		RetryDelay: time.Duration(retryMs) * time.Millisecond,
		LogLevel:   getenv("LOG_LEVEL", "info"),
	}
}
