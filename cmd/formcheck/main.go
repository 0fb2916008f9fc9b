package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/workoutwise/formcheck/internal/api"
	"github.com/workoutwise/formcheck/internal/config"
	"github.com/workoutwise/formcheck/internal/db"
	"github.com/workoutwise/formcheck/internal/metrics"
	"github.com/workoutwise/formcheck/internal/monitoring"
	"github.com/workoutwise/formcheck/internal/publish"
	"github.com/workoutwise/formcheck/internal/session"
	"github.com/workoutwise/formcheck/internal/timeutil"
	"github.com/workoutwise/formcheck/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db-path", "formcheck.db", "Path to the SQLite database")
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to a .json or .yaml form config; empty uses built-in defaults")
	plankModel  = flag.String("plank-model", "models/plank.json", "Path to the plank classifier model")
	squatModel  = flag.String("squat-model", "models/squat.json", "Path to the squat classifier model")
	mqttBroker  = flag.String("mqtt-broker", "", "MQTT broker for live status, e.g. tcp://localhost:1883 (disabled when empty)")
	mqttTopic   = flag.String("mqtt-topic", publish.DefaultTopicPrefix, "MQTT topic prefix for live status")
	mqttClient  = flag.String("mqtt-client-id", "formcheck", "MQTT client id")
	idleTimeout = flag.Duration("idle-timeout", api.DefaultIdleTimeout, "Finish live sessions that receive no frames for this long")
	quiet       = flag.Bool("quiet", false, "Mute per-frame diagnostic logs")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n       %s [flags] migrate <action>\n\nFlags:\n", os.Args[0], os.Args[0])
	flag.PrintDefaults()
}

// loadOptions reads the form config at path, or uses the defaults when path
// is empty.
func loadOptions(path string) (session.Options, error) {
	if path == "" {
		return session.DefaultOptions(), nil
	}
	cfg, err := config.LoadFormConfig(path)
	if err != nil {
		return session.Options{}, err
	}
	return session.OptionsFromConfig(cfg)
}

// newPublisher connects to the MQTT broker when one is configured.
func newPublisher(broker, topic, clientID string) (publish.Publisher, error) {
	if broker == "" {
		return publish.Nop{}, nil
	}
	return publish.NewMQTTPublisher(publish.MQTTConfig{
		Broker:      broker,
		ClientID:    clientID,
		TopicPrefix: topic,
		QoS:         1,
	})
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(os.Stdout, flag.Args()[1:], *dbPath); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}
	if flag.NArg() > 0 {
		usage()
		os.Exit(2)
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}

	opts, err := loadOptions(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	models, err := session.LoadModels(*plankModel, *squatModel)
	if err != nil {
		log.Fatalf("Failed to load models: %v", err)
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	publisher, err := newPublisher(*mqttBroker, *mqttTopic, *mqttClient)
	if err != nil {
		log.Fatalf("Failed to connect to MQTT broker: %v", err)
	}
	defer publisher.Close()

	server := api.NewServer(api.Config{
		Models:      models,
		Options:     opts,
		Store:       store,
		Metrics:     metrics.New(),
		Publisher:   publisher,
		Clock:       timeutil.RealClock{},
		IdleTimeout: *idleTimeout,
	})

	mux := server.ServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		log.Fatalf("Failed to mount admin routes: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// reap idle live sessions; finishes the rest on shutdown
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Run(ctx)
		log.Print("session reaper terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		httpServer := &http.Server{
			Addr:              *listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("formcheck %s listening on %s", version.Version, *listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := httpServer.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
