package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/prologic/simbridgefs/config"
	"github.com/prologic/simbridgefs/datastore"
	"github.com/prologic/simbridgefs/fs"
	"github.com/prologic/simbridgefs/internal/httpx"
	"github.com/prologic/simbridgefs/notify"
	"github.com/prologic/simbridgefs/sandbox"
	"github.com/prologic/simbridgefs/simbridge"
	"github.com/prologic/simbridgefs/store"
)

func main() {
	if !config.Execute() {
		return
	}

	if config.Selected == config.ActionSandbox {
		runSandbox()
		return
	}

	ctx := context.Background()

	st, err := openStore(ctx)
	if err != nil {
		log.WithError(err).Fatal("error creating store")
		return
	}
	defer st.Close()

	bus := notify.NewBus()
	if config.NATSURL != "" {
		nc, err := nats.Connect(config.NATSURL, nats.Name("simbridgefs"))
		if err != nil {
			log.WithError(err).WithField("url", config.NATSURL).Fatal("Failed to connect to NATS")
			return
		}
		defer nc.Drain()
		bridge, err := notify.NewNATSBridge(bus, nc, notify.BridgeConfig{Topic: datastore.UpdateTopic})
		if err != nil {
			log.WithError(err).Fatal("Failed to start NATS bridge")
			return
		}
		defer bridge.Close()
	}
	ds := datastore.New(st, bus)

	switch config.Selected {
	case config.ActionGet:
		def := ""
		if len(config.Args) > 1 {
			def = config.Args[1]
		}
		fmt.Println(ds.Get(ctx, config.Args[0], def))
		return
	case config.ActionSet:
		if err := ds.Set(ctx, config.Args[0], config.Args[1]); err != nil {
			log.WithError(err).WithField("key", config.Args[0]).Fatal("Failed to store setting")
		}
		return
	case config.ActionWatch:
		watch(ctx, ds)
		return
	}

	client, err := newClient(ctx, ds)
	if err != nil {
		log.WithError(err).Fatal("Failed to create SimBridge client")
		return
	}
	log.WithField("url", client.BaseURL()).Debug("Using SimBridge")

	if config.Selected == config.ActionProbe {
		if client.Terrain().ProbeAvailability(ctx) {
			fmt.Println(simbridge.Available)
			return
		}
		fmt.Println(simbridge.Unavailable)
		st.Close()
		os.Exit(1)
	}

	mountPoint, err := filepath.Abs(config.MountPoint)
	if err != nil {
		log.WithError(err).WithField("mountPoint", mountPoint).Fatal("Failed to get abs file path")
		return
	}
	server := fs.MustMount(mountPoint, ds, client.Viewer())
	go server.ListenForUnmount()
	log.Infof("Mounted to %q, use ctrl+c to terminate.", mountPoint)
	server.Wait()
}

func openStore(ctx context.Context) (store.Store, error) {
	switch config.StoreKind {
	case config.StoreRedis:
		return store.NewRedisStore(ctx, store.RedisConfig{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	default:
		return store.NewBitcaskStore(config.DBPath)
	}
}

func newClient(ctx context.Context, ds *datastore.DataStore) (*simbridge.Client, error) {
	opts := []simbridge.Option{simbridge.WithTimeout(config.Timeout)}
	if config.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := httpx.NewMetrics(reg, "simbridgefs")
		if err != nil {
			return nil, err
		}
		opts = append(opts, simbridge.WithMetrics(m))

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.WithField("addr", config.MetricsAddr).Info("Serving metrics")
			if err := http.ListenAndServe(config.MetricsAddr, mux); err != nil {
				log.WithError(err).Error("Failed to serve metrics")
			}
		}()
	}
	return simbridge.NewFromDataStore(ctx, ds, opts...)
}

func watch(ctx context.Context, ds *datastore.DataStore) {
	show := func(key, value string) { fmt.Printf("%s=%s\n", key, value) }

	var dispose func()
	if len(config.Args) == 1 {
		dispose = ds.GetAndSubscribe(ctx, config.Args[0], show, "")
	} else {
		dispose = ds.Subscribe(datastore.Wildcard, show)
	}
	defer dispose()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
	<-c
}

func runSandbox() {
	var seed *sandbox.Seed
	if config.SeedPath != "" {
		var err error
		if seed, err = sandbox.LoadSeed(config.SeedPath); err != nil {
			log.WithError(err).Fatal("Failed to load seed")
			return
		}
	}

	if !config.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	opts := []sandbox.Option{sandbox.WithLatency(config.Latency)}
	if config.FailStatus != 0 {
		opts = append(opts, sandbox.WithFailure(config.FailStatus))
	}
	srv, err := sandbox.New(seed, opts...)
	if err != nil {
		log.WithError(err).Fatal("Failed to create sandbox")
		return
	}

	log.Infof("Serving sandbox SimBridge on %q", config.SandboxAddr)
	if err := http.ListenAndServe(config.SandboxAddr, srv.Handler()); err != nil {
		log.WithError(err).Fatal("Sandbox stopped")
	}
}
