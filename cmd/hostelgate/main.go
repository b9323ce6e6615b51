// Hostel Gate - campus movement and canteen access service
//
// This is the main entry point for the Hostel Gate core. It authenticates
// handheld scanners, records student check-outs and check-ins at the gate,
// flags canteen visits outside a student's own hostel, and replays scans
// queued while a scanner was offline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	_ "github.com/nerrad567/hostel-gate/migrations"

	"github.com/nerrad567/hostel-gate/internal/alert"
	"github.com/nerrad567/hostel-gate/internal/api"
	"github.com/nerrad567/hostel-gate/internal/audit"
	"github.com/nerrad567/hostel-gate/internal/auth"
	"github.com/nerrad567/hostel-gate/internal/canteen"
	"github.com/nerrad567/hostel-gate/internal/clock"
	"github.com/nerrad567/hostel-gate/internal/device"
	"github.com/nerrad567/hostel-gate/internal/housekeeping"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/config"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/database"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/influxdb"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/kafka"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/logging"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/mqtt"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/redis"
	"github.com/nerrad567/hostel-gate/internal/movement"
	"github.com/nerrad567/hostel-gate/internal/offline"
	"github.com/nerrad567/hostel-gate/internal/student"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// startupHealthTimeout bounds the initial connectivity checks.
const startupHealthTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Hostel Gate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	if cfg.UsesDefaultCredentials() {
		log.Warn("one or more role credentials still use the shipped development values")
	}

	loc, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		return fmt.Errorf("loading site timezone %q: %w", cfg.Site.Timezone, err)
	}

	// Open database
	db, err := database.Open(database.Config{
		Driver:      cfg.Database.Driver,
		Path:        cfg.Database.Path,
		DSN:         cfg.Database.DSN,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "driver", db.Driver(), "path", db.Path())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Scanner registry
	deviceRegistry := device.NewRegistry(device.NewSQLRepository(db))
	deviceRegistry.SetLogger(log)
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	// Security audit log
	auditRepo := audit.NewSQLRepository(db)
	recorder := audit.NewRecorder(auditRepo, clock.Real{})
	recorder.SetLogger(log)
	recorder.Start(ctx)
	defer recorder.Stop()

	authenticator := newAuthenticator(cfg, deviceRegistry, recorder, log)

	// Optional infrastructure. Each is skipped with a warning when disabled.
	mqttClient := connectMQTT(cfg, log)
	if c := mqttClient; c != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := c.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	influxClient := connectInflux(cfg, log)
	if c := influxClient; c != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := c.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	redisClient := connectRedis(cfg, log)
	if c := redisClient; c != nil {
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := c.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
	}

	mqttClient, influxClient, redisClient, err = healthCheck(ctx, log, db, mqttClient, influxClient, redisClient)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Domain
	students := student.NewSQLRepository(db)
	hub := api.NewHub(cfg.WebSocket, log)

	alerts := alert.NewSQLRepository(db)
	fanout := alert.NewFanout(clock.Real{})
	fanout.Add("store", alerts)
	fanout.Add("websocket", alert.NewHubSink(hub))
	if mqttClient != nil {
		fanout.Add("mqtt", alert.NewMQTTSink(mqttClient))
	}

	var telemetry movement.Telemetry
	if influxClient != nil {
		telemetry = influxClient
	}

	machine := movement.NewMachine(movement.Deps{
		Store:             students,
		MaxOutsideMinutes: cfg.Movement.MaxOutsideMinutes,
		Location:          loc,
		Telemetry:         telemetry,
		Events:            hub,
		Logger:            log,
	})
	monitor := canteen.NewMonitor(canteen.Deps{
		Store:     students,
		Alerts:    fanout,
		Location:  loc,
		Telemetry: telemetry,
		Events:    hub,
		Logger:    log,
	})

	// Offline sync
	dedup, memoryDedup := newDeduper(cfg, redisClient, log)
	reconciler := offline.NewReconciler(offline.Deps{
		Movement: machine,
		Canteen:  monitor,
		Dedup:    dedup,
		Clock:    clock.Real{},
		Logger:   log,
	})

	var publisher offline.Publisher
	if mqttClient != nil {
		publisher = mqttClient
	}
	ingestor := offline.NewIngestor(reconciler, authenticator, publisher, log)

	if mqttClient != nil {
		topic := cfg.Sync.MQTTTopic
		if topic == "" {
			topic = mqtt.Topics{}.AllSyncBatches()
		}
		if err := mqttClient.Subscribe(topic, mqttClient.QoS(), func(t string, payload []byte) error {
			return ingestor.HandleMessage(ctx, t, payload)
		}); err != nil {
			return fmt.Errorf("subscribing to offline sync batches: %w", err)
		}
		log.Info("offline sync subscribed", "topic", topic)
	}

	if consumer := newKafkaConsumer(cfg, log); consumer != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			if runErr := consumer.Run(ctx, ingestor.HandleRecord); runErr != nil {
				log.Error("kafka consumer stopped", "error", runErr)
			}
		}()
		defer func() {
			log.Info("closing Kafka consumer")
			if closeErr := consumer.Close(); closeErr != nil {
				log.Error("error closing Kafka consumer", "error", closeErr)
			}
			<-done
		}()
	}

	// Housekeeping
	scheduler := housekeeping.NewScheduler(cfg.GetHousekeepingInterval(), log)
	scheduler.Add(housekeeping.SweepJob(housekeeping.JobSessionSweep, authenticator.Sessions(), log))
	scheduler.Add(housekeeping.SweepJob(housekeeping.JobAttemptSweep, authenticator.Attempts(), log))
	if memoryDedup != nil {
		scheduler.Add(housekeeping.SweepJob(housekeeping.JobDedupSweep, memoryDedup, log))
	}
	scheduler.Add(housekeeping.RetentionJob(students, cfg.GetRetention(), clock.Real{}, log))
	if failed := scheduler.RunOnce(ctx); failed > 0 {
		log.Warn("startup housekeeping had failures", "failed", failed)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// HTTP API
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Clock:       clock.Real{},
		Auth:        authenticator,
		Devices:     deviceRegistry,
		Students:    students,
		Movement:    machine,
		Canteen:     monitor,
		Reconciler:  reconciler,
		Alerts:      alerts,
		Audit:       auditRepo,
		DB:          db,
		Retention:   cfg.GetRetention(),
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, housekeeping,
	// Kafka, Redis, InfluxDB, MQTT, audit recorder, database.

	log.Info("Hostel Gate stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOSTELGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOSTELGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newAuthenticator builds the login pipeline from configuration.
func newAuthenticator(cfg *config.Config, devices auth.DeviceChecker, securityLog auth.SecurityLog, log *logging.Logger) *auth.Authenticator {
	attempts := auth.NewAttemptTracker(auth.AttemptPolicy{
		MaxAttempts: cfg.Security.Lockout.MaxAttempts,
		Window:      cfg.GetLockoutWindow(),
		Lockout:     cfg.GetLockoutDuration(),
		Retain:      cfg.GetAttemptRetention(),
	}, clock.Real{})

	return auth.NewAuthenticator(auth.Deps{
		Devices:     devices,
		Credentials: auth.NewCredentials(cfg.Security.Credentials),
		Attempts:    attempts,
		Sessions:    auth.NewSessionRegistry(cfg.GetSessionIdleTimeout(), clock.Real{}),
		Tokens:      auth.NewTokenIssuer(cfg.Security.JWT.Secret, cfg.GetTokenTTL(), clock.Real{}),
		SecurityLog: securityLog,
		Logger:      log,
	})
}

// connectMQTT connects to the broker when enabled. Scanners fall back to
// HTTP sync when the broker is unavailable, so failure is not fatal.
func connectMQTT(cfg *config.Config, log *logging.Logger) *mqtt.Client {
	client, err := mqtt.Connect(cfg.MQTT)
	if errors.Is(err, mqtt.ErrDisabled) {
		log.Info("MQTT disabled")
		return nil
	}
	if err != nil {
		log.Warn("MQTT unavailable, continuing without broker", "error", err)
		return nil
	}
	client.SetLogger(log)
	client.OnConnectionChange(func(connected bool, err error) {
		if connected {
			log.Info("MQTT reconnected")
			return
		}
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client
}

// connectInflux connects the movement telemetry writer when enabled.
func connectInflux(cfg *config.Config, log *logging.Logger) *influxdb.Client {
	client, err := influxdb.Connect(cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil
	}
	if err != nil {
		log.Warn("InfluxDB unavailable, telemetry disabled", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client
}

// connectRedis connects the shared dedup store when enabled.
func connectRedis(cfg *config.Config, log *logging.Logger) *redis.Client {
	client, err := redis.Connect(cfg.Redis)
	if errors.Is(err, redis.ErrDisabled) {
		log.Info("Redis disabled")
		return nil
	}
	if err != nil {
		log.Warn("Redis unavailable, using in-process dedup", "error", err)
		return nil
	}
	log.Info("Redis connected", "addr", cfg.Redis.Addr)
	return client
}

// newKafkaConsumer creates the offline batch consumer when enabled.
func newKafkaConsumer(cfg *config.Config, log *logging.Logger) *kafka.Consumer {
	consumer, err := kafka.NewConsumer(cfg.Kafka)
	if errors.Is(err, kafka.ErrDisabled) {
		log.Info("Kafka ingest disabled")
		return nil
	}
	if err != nil {
		log.Warn("Kafka ingest unavailable", "error", err)
		return nil
	}
	consumer.SetLogger(log)
	return consumer
}

// newDeduper picks the offline event dedup backend. The memory deduper is
// also returned so housekeeping can sweep it.
func newDeduper(cfg *config.Config, redisClient *redis.Client, log *logging.Logger) (offline.Deduper, *offline.MemoryDeduper) {
	if !cfg.Sync.Dedup {
		log.Info("offline sync dedup disabled")
		return nil, nil
	}
	if redisClient != nil {
		return offline.NewRedisDeduper(redisClient, cfg.GetDedupTTL()), nil
	}
	mem := offline.NewMemoryDeduper(cfg.GetDedupTTL(), clock.Real{})
	return mem, mem
}

// healthCheck verifies the infrastructure connections that were opened.
// The database must answer. An optional backend that fails is logged and
// returned as nil so the core runs without it; nil clients are skipped.
func healthCheck(ctx context.Context, log *logging.Logger, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, redisClient *redis.Client) (*mqtt.Client, *influxdb.Client, *redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, startupHealthTimeout)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil && !checkOptional(ctx, log, "mqtt", mqttClient) {
		mqttClient = nil
	}
	if influxClient != nil && !checkOptional(ctx, log, "influxdb", influxClient) {
		influxClient = nil
	}
	if redisClient != nil && !checkOptional(ctx, log, "redis", redisClient) {
		redisClient = nil
	}
	log.Info("health checks complete",
		"mqtt", mqttClient != nil,
		"influxdb", influxClient != nil,
		"redis", redisClient != nil,
	)
	return mqttClient, influxClient, redisClient, nil
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// checkOptional reports whether an optional backend is healthy, warning
// when it is not.
func checkOptional(ctx context.Context, log *logging.Logger, name string, c healthChecker) bool {
	if err := c.HealthCheck(ctx); err != nil {
		log.Warn("optional backend failed health check, continuing without it", "backend", name, "error", err)
		return false
	}
	return true
}
