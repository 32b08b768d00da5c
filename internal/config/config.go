package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string

	Sifen  SifenConfig
	Issuer IssuerConfig
	Poller PollerConfig
}

// SifenConfig holds the tax authority endpoint settings.
type SifenConfig struct {
	BaseURL        string
	QRBaseURL      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	KeystorePath     string
	KeystorePassword string
}

// IssuerConfig is the static issuer block stamped into every fiscal document.
type IssuerConfig struct {
	RUC           string
	LegalName     string
	TradeName     string
	Address       string
	City          string
	Email         string
	Establishment string
	PointOfSale   string
	TaxpayerType  int
	Timbrado      string
	TimbradoStart string
	EmissionMode  int
}

// PollerConfig controls the reconciliation worker.
type PollerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "kuatia"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "kuatia"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		Sifen: SifenConfig{
			BaseURL:          getenv("SIFEN_BASE_URL", "https://sifen-test.set.gov.py"),
			QRBaseURL:        getenv("SIFEN_QR_BASE_URL", "https://ekuatia.set.gov.py/consultas/qr"),
			ConnectTimeout:   getenvDuration("SIFEN_CONNECT_TIMEOUT", 10*time.Second),
			ReadTimeout:      getenvDuration("SIFEN_READ_TIMEOUT", 45*time.Second),
			KeystorePath:     getenv("SIFEN_KEYSTORE_PATH", ""),
			KeystorePassword: getenv("SIFEN_KEYSTORE_PASSWORD", ""),
		},
		Issuer: IssuerConfig{
			RUC:           getenv("ISSUER_RUC", ""),
			LegalName:     getenv("ISSUER_LEGAL_NAME", ""),
			TradeName:     getenv("ISSUER_TRADE_NAME", ""),
			Address:       getenv("ISSUER_ADDRESS", ""),
			City:          getenv("ISSUER_CITY", "Asuncion"),
			Email:         getenv("ISSUER_EMAIL", ""),
			Establishment: getenv("ISSUER_ESTABLISHMENT", "001"),
			PointOfSale:   getenv("ISSUER_POINT_OF_SALE", "001"),
			TaxpayerType:  getenvInt("ISSUER_TAXPAYER_TYPE", 2),
			Timbrado:      getenv("ISSUER_TIMBRADO", ""),
			TimbradoStart: getenv("ISSUER_TIMBRADO_START", ""),
			EmissionMode:  getenvInt("ISSUER_EMISSION_MODE", 1),
		},
		Poller: PollerConfig{
			Interval:  getenvDuration("POLLER_INTERVAL", time.Minute),
			BatchSize: getenvInt("POLLER_BATCH_SIZE", 25),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: invalid int for %s: %q", key, raw)
		return def
	}
	return value
}

func getenvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: invalid duration for %s: %q", key, raw)
		return def
	}
	return value
}
