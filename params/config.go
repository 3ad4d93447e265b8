package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	ListenAddr  string
	CORSOrigins []string
}

type Chain struct {
	RPCURL          string
	ChainID         int64
	ExchangeAddress string
	// EIP-712 domain the wallets sign against.
	DomainName    string
	DomainVersion string
}

type Watchdog struct {
	BaseURL string
	Topic   string
}

type Prices struct {
	BaseURL         string
	RefreshInterval time.Duration
}

type Kafka struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Config struct {
	DataDir  string
	LogFile  string
	Server   Server
	Chain    Chain
	Watchdog Watchdog
	Prices   Prices
	Kafka    Kafka
}

func Default() Config {
	return Config{
		DataDir: "data/orderbook",
		LogFile: "data/orderbook.log",
		Server: Server{
			ListenAddr:  ":8080",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Chain: Chain{
			RPCURL:          "http://localhost:8545",
			ChainID:         1,
			ExchangeAddress: "0x0000000000000000000000000000000000000000",
			DomainName:      "Exchange",
			DomainVersion:   "2",
		},
		Watchdog: Watchdog{
			Topic: "orders",
		},
		Prices: Prices{
			BaseURL:         "https://api.coingecko.com/api/v3",
			RefreshInterval: 30 * time.Second,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chain.ChainID = id
		}
	}
	if v := os.Getenv("EXCHANGE_ADDRESS"); v != "" {
		cfg.Chain.ExchangeAddress = v
	}
	if v := os.Getenv("EIP712_DOMAIN_NAME"); v != "" {
		cfg.Chain.DomainName = v
	}
	if v := os.Getenv("EIP712_DOMAIN_VERSION"); v != "" {
		cfg.Chain.DomainVersion = v
	}
	if v := os.Getenv("WATCHDOG_URL"); v != "" {
		cfg.Watchdog.BaseURL = v
	}
	if v := os.Getenv("WATCHDOG_TOPIC"); v != "" {
		cfg.Watchdog.Topic = v
	}
	if v := os.Getenv("PRICES_URL"); v != "" {
		cfg.Prices.BaseURL = v
	}
	if v := os.Getenv("PRICES_REFRESH_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Prices.RefreshInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("KAFKA_GROUP_ID"); v != "" {
		cfg.Kafka.GroupID = v
	}

	return cfg
}
