package main

import (
	// Go Internal Packages
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	// Local Packages
	config "remit-orchestrator/config"
	kafka "remit-orchestrator/kafka"
	mongodb "remit-orchestrator/repositories/mongodb"
	redis "remit-orchestrator/repositories/redis"
	callbacks "remit-orchestrator/services/callbacks"
	gateways "remit-orchestrator/services/gateways"
	orchestrator "remit-orchestrator/services/orchestrator"
	policy "remit-orchestrator/services/policy"
	scheduler "remit-orchestrator/services/scheduler"

	// External Packages
	"github.com/alecthomas/kingpin/v2"
	_ "github.com/jsternberg/zap-logfmt"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/shopspring/decimal"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
)

// LoadConfig loads the default configuration and overrides it with the config file
// specified by the path defined in the config flag
func LoadConfig() *koanf.Koanf {
	configPathMsg := "Path to the application config file"
	configPath := kingpin.Flag("config", configPathMsg).Short('c').Default("config.yml").String()

	kingpin.Parse()
	k := koanf.New(".")
	_ = k.Load(rawbytes.Provider(config.DefaultConfig), yaml.Parser())
	if *configPath != "" {
		_ = k.Load(file.Provider(*configPath), yaml.Parser())
	}
	return k
}

func main() {
	k := LoadConfig()
	appKonf := config.Config{}

	// Unmarshalling config into struct
	err := k.Unmarshal("", &appKonf)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// Validate the config loaded
	if err = appKonf.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if !appKonf.IsProdMode {
		k.Print()
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "logfmt"
	_ = cfg.Level.UnmarshalText([]byte(k.String("logger.level")))
	cfg.InitialFields = make(map[string]any)
	cfg.InitialFields["host"], _ = os.Hostname()
	cfg.InitialFields["service"] = appKonf.Application
	cfg.OutputPaths = []string{"stdout"}
	logger, _ := cfg.Build()
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Mongo Connection
	mongoClient, err := mongodb.Connect(ctx, appKonf.Mongo.URI)
	if err != nil {
		logger.Fatal("cannot create mongo client", zap.Error(err))
	}

	// Redis Connection
	redisClient, err := redis.Connect(ctx, appKonf.Redis.URI, appKonf.Redis.Password)
	if err != nil {
		logger.Fatal("cannot create redis client", zap.Error(err))
	}

	txRepo := mongodb.NewTxRepository(mongoClient, appKonf.Mongo.Database)
	auditRepo := mongodb.NewAuditRepository(mongoClient, appKonf.Mongo.Database)
	dlQueue := redis.NewDeadLetterQueue(redisClient, logger)

	// Gateway variants are selected once here, never per call.
	collection := gateways.SelectCollection(appKonf.Gateways.Collection)
	conversion := gateways.SelectConversion(appKonf.Gateways.Conversion)
	disbursement := gateways.SelectDisbursement(appKonf.Gateways.Disbursement)

	orch := orchestrator.New(logger, txRepo, auditRepo, collection, conversion, disbursement, orchestrator.Config{
		Policy: policy.Config{
			FeeRate:    decimal.NewFromFloat(appKonf.Fees.Rate),
			MinFee:     decimal.NewFromFloat(appKonf.Fees.Min),
			MaxFee:     decimal.NewFromFloat(appKonf.Fees.Max),
			MinAmount:  decimal.NewFromFloat(appKonf.Limits.MinAmount),
			MaxAmount:  decimal.NewFromFloat(appKonf.Limits.MaxAmount),
			DailyLimit: decimal.NewFromFloat(appKonf.Limits.DailyLimit),
		},
		SourceCurrency: appKonf.Corridor.SourceCurrency,
		TargetCurrency: appKonf.Corridor.TargetCurrency,
		RateTolerance:  decimal.NewFromFloat(appKonf.Corridor.RateTolerance),
	})

	sched := scheduler.New(logger, txRepo, scheduler.Config{
		Tick:          appKonf.Reconcile.Tick,
		InitialDelay:  appKonf.Reconcile.InitialDelay,
		FixedAttempts: appKonf.Reconcile.FixedAttempts,
		Multiplier:    appKonf.Reconcile.Multiplier,
		MaxDelay:      appKonf.Reconcile.MaxDelay,
		MaxAttempts:   appKonf.Reconcile.MaxAttempts,
		MaxInFlight:   appKonf.Reconcile.MaxInFlight,
	})
	sched.SetResolver(orch)
	orch.SetTracker(sched)

	// Legs awaiting resolution are recomputed from the store, not from
	// timers that vanished with the previous process.
	if err := sched.Resync(ctx); err != nil {
		logger.Fatal("cannot resync unresolved transactions", zap.Error(err))
	}
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	processor := callbacks.NewProcessor(logger, orch)

	metrics := kprom.NewMetrics("remit")
	conf := &kafka.ConsumerConfig{
		Brokers:        appKonf.Kafka.Brokers,
		Name:           appKonf.Kafka.ConsumerName,
		Topic:          appKonf.Kafka.Topic,
		RecordsPerPoll: appKonf.Kafka.RecordsPerPoll,
	}

	cbConsumer, err := kafka.NewCallbackConsumer(conf, logger, processor, dlQueue, metrics)
	if err != nil {
		logger.Fatal("cannot create callbacks consumer", zap.Error(err))
	}

	err = cbConsumer.Poll(ctx)
	if err != nil {
		logger.Fatal("cannot poll records from topic", zap.Error(err))
	}
}
