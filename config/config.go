package config

import (
	// Go Internal Packages
	"time"

	// Local Packages
	errors "remit-orchestrator/errors"
)

var DefaultConfig = []byte(`
application: "remit-orchestrator"

logger:
  level: "debug"

is_prod_mode: false

mongo:
  uri: "mongodb://localhost:27017"
  database: "remit"

redis:
  uri: "localhost:6379"
  password: ""

kafka:
  brokers:
    - "localhost:9092"
  topic: "partner-callbacks"
  records_per_poll: 500
  consumer_name: "remit-orchestrator"

corridor:
  source_currency: "INR"
  target_currency: "CAD"
  rate_tolerance: 0.05

fees:
  rate: 0.005
  min: 50
  max: 5000

limits:
  min_amount: 100
  max_amount: 100000
  daily_limit: 200000

gateways:
  collection:
    mode: "mock"
    endpoint: "http://localhost:8081"
    timeout: "5s"
  conversion:
    mode: "mock"
    endpoint: "http://localhost:8082"
    timeout: "5s"
  disbursement:
    mode: "mock"
    endpoint: "http://localhost:8083"
    timeout: "10s"

reconcile:
  tick: "1s"
  initial_delay: "5s"
  fixed_attempts: 3
  multiplier: 2.0
  max_delay: "5m"
  max_attempts: 20
  max_in_flight: "24h"
`)

type Config struct {
	Application string    `koanf:"application"`
	Logger      Logger    `koanf:"logger"`
	IsProdMode  bool      `koanf:"is_prod_mode"`
	Mongo       Mongo     `koanf:"mongo"`
	Redis       Redis     `koanf:"redis"`
	Kafka       Kafka     `koanf:"kafka"`
	Corridor    Corridor  `koanf:"corridor"`
	Fees        Fees      `koanf:"fees"`
	Limits      Limits    `koanf:"limits"`
	Gateways    Gateways  `koanf:"gateways"`
	Reconcile   Reconcile `koanf:"reconcile"`
}

type Logger struct {
	Level string `koanf:"level"`
}

type Mongo struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

type Redis struct {
	URI      string `koanf:"uri"`
	Password string `koanf:"password"`
}

type Kafka struct {
	Brokers        []string `koanf:"brokers"`
	Topic          string   `koanf:"topic"`
	RecordsPerPoll int      `koanf:"records_per_poll"`
	ConsumerName   string   `koanf:"consumer_name"`
}

type Corridor struct {
	SourceCurrency string  `koanf:"source_currency"`
	TargetCurrency string  `koanf:"target_currency"`
	RateTolerance  float64 `koanf:"rate_tolerance"`
}

type Fees struct {
	Rate float64 `koanf:"rate"`
	Min  float64 `koanf:"min"`
	Max  float64 `koanf:"max"`
}

type Limits struct {
	MinAmount  float64 `koanf:"min_amount"`
	MaxAmount  float64 `koanf:"max_amount"`
	DailyLimit float64 `koanf:"daily_limit"`
}

type Gateway struct {
	Mode     string        `koanf:"mode"`
	Endpoint string        `koanf:"endpoint"`
	Timeout  time.Duration `koanf:"timeout"`
}

type Gateways struct {
	Collection   Gateway `koanf:"collection"`
	Conversion   Gateway `koanf:"conversion"`
	Disbursement Gateway `koanf:"disbursement"`
}

type Reconcile struct {
	Tick          time.Duration `koanf:"tick"`
	InitialDelay  time.Duration `koanf:"initial_delay"`
	FixedAttempts int           `koanf:"fixed_attempts"`
	Multiplier    float64       `koanf:"multiplier"`
	MaxDelay      time.Duration `koanf:"max_delay"`
	MaxAttempts   int           `koanf:"max_attempts"`
	MaxInFlight   time.Duration `koanf:"max_in_flight"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	ve := errors.ValidationErrs()

	if c.Application == "" {
		ve.Add("application", "cannot be empty")
	}
	if c.Logger.Level == "" {
		ve.Add("logger.level", "cannot be empty")
	}
	if c.Mongo.URI == "" {
		ve.Add("mongo.uri", "cannot be empty")
	}
	if c.Mongo.Database == "" {
		ve.Add("mongo.database", "cannot be empty")
	}
	if c.Redis.URI == "" {
		ve.Add("redis.uri", "cannot be empty")
	}
	if len(c.Kafka.Brokers) == 0 {
		ve.Add("kafka.brokers", "cannot be empty")
	}
	if c.Kafka.Topic == "" {
		ve.Add("kafka.topic", "cannot be empty")
	}
	if c.Corridor.SourceCurrency == "" {
		ve.Add("corridor.source_currency", "cannot be empty")
	}
	if c.Corridor.TargetCurrency == "" {
		ve.Add("corridor.target_currency", "cannot be empty")
	}
	if c.Fees.Rate < 0 || c.Fees.Rate >= 1 {
		ve.Add("fees.rate", "must be in [0, 1)")
	}
	if c.Limits.MinAmount <= 0 {
		ve.Add("limits.min_amount", "must be positive")
	}
	if c.Limits.MaxAmount < c.Limits.MinAmount {
		ve.Add("limits.max_amount", "must be >= limits.min_amount")
	}
	if c.Limits.DailyLimit < c.Limits.MaxAmount {
		ve.Add("limits.daily_limit", "must be >= limits.max_amount")
	}
	for name, gw := range map[string]Gateway{
		"gateways.collection":   c.Gateways.Collection,
		"gateways.conversion":   c.Gateways.Conversion,
		"gateways.disbursement": c.Gateways.Disbursement,
	} {
		if gw.Mode != "mock" && gw.Mode != "http" {
			ve.Add(name+".mode", "must be mock or http")
		}
		if gw.Mode == "http" && gw.Endpoint == "" {
			ve.Add(name+".endpoint", "cannot be empty")
		}
	}
	if c.Reconcile.InitialDelay <= 0 {
		ve.Add("reconcile.initial_delay", "must be positive")
	}
	if c.Reconcile.Multiplier < 1 {
		ve.Add("reconcile.multiplier", "must be >= 1")
	}
	if c.Reconcile.MaxAttempts <= 0 {
		ve.Add("reconcile.max_attempts", "must be positive")
	}
	if c.Reconcile.MaxInFlight <= 0 {
		ve.Add("reconcile.max_in_flight", "must be positive")
	}

	return ve.Err()
}
