package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/droidprobe/internal/adbserver"
	"github.com/nerrad567/droidprobe/internal/api"
	"github.com/nerrad567/droidprobe/internal/channel"
	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/extraction"
	"github.com/nerrad567/droidprobe/internal/infrastructure/database"
	"github.com/nerrad567/droidprobe/internal/infrastructure/influxdb"
	"github.com/nerrad567/droidprobe/internal/infrastructure/logging"
	"github.com/nerrad567/droidprobe/internal/infrastructure/mqtt"
	"github.com/nerrad567/droidprobe/internal/publish"
	"github.com/nerrad567/droidprobe/internal/session"
)

const minScanInterval = time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve device records over HTTP, MQTT and InfluxDB",
		Long: `Run the API server and keep device records current.

Attached devices are rescanned every extraction.scan_interval; devices that
come online are extracted once. Records are published to MQTT (retained),
snapshots are stored in SQLite and pass statistics are written to InfluxDB
when those sections are enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// serve runs until ctx is cancelled. Deferred closes run in reverse order:
// API, InfluxDB, MQTT, database, adb server.
func (a *app) serve(ctx context.Context) error {
	log := logging.New(a.cfg.Logging, version)
	a.log = log
	log.Info("starting droidprobe",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Start the adb server (if managed)
	var adbServer *adbserver.Manager
	if a.cfg.ADB.Server.Managed {
		adbServer = adbserver.NewManager(adbserver.FromConfig(a.cfg.ADB))
		adbServer.SetLogger(log)
		if err := adbServer.Start(ctx); err != nil {
			return fmt.Errorf("starting adb server: %w", err)
		}
		defer func() {
			log.Info("stopping adb server")
			if err := adbServer.Stop(); err != nil {
				log.Error("error stopping adb server", "error", err)
			}
		}()
	}

	sess, orch, err := a.newSession("")
	if err != nil {
		return err
	}

	// Open database (optional)
	var (
		db   *database.DB
		repo device.Repository
	)
	if a.cfg.Database.Enabled {
		db, err = a.openDatabase(ctx)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		repo = device.NewSQLiteRepository(db.DB)
		log.Info("database connected", "path", a.cfg.Database.Path)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if a.cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(a.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
			"client_id", a.cfg.MQTT.Broker.ClientID,
		)
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if a.cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, a.cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", a.cfg.InfluxDB.URL,
			"org", a.cfg.InfluxDB.Org,
			"bucket", a.cfg.InfluxDB.Bucket,
		)
	}

	srv, err := api.New(api.Deps{
		Config:      a.cfg.API,
		WS:          a.cfg.WebSocket,
		Logger:      log,
		Session:     sess,
		Repo:        repo,
		DB:          db,
		MQTT:        mqttClient,
		ADBServer:   adbServer,
		Version:     version,
		Parallelism: a.cfg.Extraction.Parallelism,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	pub := publish.New(sess, sinks(repo, mqttClient, influxClient, srv.Hub()))
	pub.SetLogger(log)
	orch.SetObserver(pub.ObservePass)
	sess.OnEvent(pub.HandleEvent)

	if mqttClient != nil {
		if err := mqttClient.SubscribeExtract(pub.HandleExtractRequest); err != nil {
			return fmt.Errorf("subscribing to extract commands: %w", err)
		}
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, watching devices",
		"scan_interval", a.cfg.Extraction.ScanInterval,
	)
	err = watch(ctx, log, a.cfg.Extraction.ScanInterval, a.refresh(sess))

	log.Info("droidprobe stopped")
	return err
}

// sinks collects the enabled outputs. Disabled ones stay nil interfaces.
func sinks(repo device.Repository, mqttClient *mqtt.Client, influxClient *influxdb.Client, hub *api.Hub) publish.Sinks {
	s := publish.Sinks{Hub: hub}
	if repo != nil {
		s.Store = repo
	}
	if mqttClient != nil {
		s.MQTT = mqttClient
	}
	if influxClient != nil {
		s.Points = influxClient
	}
	return s
}

// refresh returns the per-scan step: extract every online device. Groups a
// device already has are skipped, so only new devices do real work.
func (a *app) refresh(sess *session.Session) func(context.Context) error {
	opts := extraction.Options{KeepCache: a.cfg.Extraction.KeepCache}
	return func(ctx context.Context) error {
		if _, err := sess.Scan(ctx); err != nil {
			return err
		}
		_, err := sess.ExtractAll(ctx, nil, opts, a.cfg.Extraction.Parallelism)
		return err
	}
}

// watch calls step immediately and then every interval until ctx is done.
// Step errors are logged; a fatal channel error ends the loop.
func watch(ctx context.Context, log *logging.Logger, interval time.Duration, step func(context.Context) error) error {
	if interval < minScanInterval {
		interval = minScanInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := step(ctx); err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case channel.IsFatal(err):
				return err
			default:
				log.Warn("device refresh incomplete", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
