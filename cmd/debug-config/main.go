package main

import (
	"fmt"
	"os"

	"github.com/charging-platform/central-system/internal/config"
)

// 配置调试工具
// 打印相关环境变量与最终生效的配置
func main() {
	fmt.Println("=== Central System Configuration Check ===")

	fmt.Println("\n--- Environment Variables ---")
	envVars := []string{
		"APP_CONFIG",
		config.EnvPrefix + "_POD_ID",
		config.EnvPrefix + "_SERVER_PORT",
		config.EnvPrefix + "_SERVER_ADVERTISE_ADDR",
		config.EnvPrefix + "_DATABASE_DRIVER",
		config.EnvPrefix + "_REDIS_ADDR",
		config.EnvPrefix + "_KAFKA_BROKERS",
		config.EnvPrefix + "_NATS_URL",
		config.EnvPrefix + "_LOG_LEVEL",
	}
	for _, env := range envVars {
		if value := os.Getenv(env); value != "" {
			fmt.Printf("%s = %s\n", env, value)
		} else {
			fmt.Printf("%s = (not set)\n", env)
		}
	}

	fmt.Println("\n--- Loading Configuration ---")
	if err := config.Init(""); err != nil {
		fmt.Printf("Error reading configuration: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n--- Final Configuration ---")
	fmt.Printf("Pod ID: %s\n", cfg.PodID)
	fmt.Printf("Server Address: %s\n", cfg.GetServerAddr())
	fmt.Printf("Advertise Address: %s\n", cfg.GetAdvertiseAddr())
	fmt.Printf("WebSocket Path: %s\n", cfg.Server.WebSocketPath)
	fmt.Printf("SOAP Address: %s\n", cfg.GetSOAPAddress())
	fmt.Printf("Database Driver: %s\n", cfg.Database.Driver)
	fmt.Printf("Redis Enabled: %v (%s)\n", cfg.Redis.Enabled, cfg.Redis.Addr)
	fmt.Printf("Kafka Enabled: %v %v\n", cfg.Kafka.Enabled, cfg.Kafka.Brokers)
	fmt.Printf("NATS Enabled: %v (%s)\n", cfg.NATS.Enabled, cfg.NATS.URL)
	fmt.Printf("Log Level: %s\n", cfg.Log.Level)
	fmt.Printf("Metrics Address: %s\n", cfg.GetMetricsAddr())
	fmt.Printf("Command Timeout: %s\n", cfg.OCPP.CommandTimeout)
	fmt.Printf("Local List Strategy: %s\n", cfg.OCPP.LocalListVersionStrategy)

	fmt.Println("\n=== Configuration Check Complete ===")
}
