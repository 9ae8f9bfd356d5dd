package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/Luismorlan/famfeed/app_config"
	"github.com/Luismorlan/famfeed/cache"
	"github.com/Luismorlan/famfeed/engine"
	"github.com/Luismorlan/famfeed/gateway"
	"github.com/Luismorlan/famfeed/media"
	"github.com/Luismorlan/famfeed/mirror"
	"github.com/Luismorlan/famfeed/remote"
	"github.com/Luismorlan/famfeed/server"
	"github.com/Luismorlan/famfeed/session"
	"github.com/Luismorlan/famfeed/utils"
	"github.com/Luismorlan/famfeed/utils/dotenv"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

const (
	remoteFirebase = "firebase"
	remoteMemory   = "memory"

	serviceName    = "famfeed"
	fetchTimeout   = 30 * time.Second
	pruneInterval  = 24 * time.Hour
	serverShutdown = 5 * time.Second
)

var (
	AppConfigPath *string
	UID           *string
	ServeAddr     *string
	Remote        *string
	// Configuration to customize binary startup.
	AppConfig app_config.FamfeedAppConfig
)

// init() will always be called on before the execution of main function.
func init() {
	AppConfigPath = flag.String("app_config_path", "cmd/famfeed/config.yaml", "path to famfeed app config")
	UID = flag.String("uid", "", "uid of the signed-in user")
	ServeAddr = flag.String("serve_addr", "127.0.0.1:8080", "address of the local state API, empty to disable")
	Remote = flag.String("remote", remoteFirebase, "remote store: firebase, or memory for an offline demo family")
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
}

func newCacheStore() cache.Store {
	if AppConfig.CACHE_BACKEND == app_config.CacheBackendRedis {
		store, err := cache.NewRedisStore(utils.GetRedisClient(), AppConfig.CACHE_NAMESPACE)
		if err != nil {
			Logger.Log.Fatalf("fail to create redis cache: %v", err)
		}
		return store
	}
	store, err := cache.NewFileStore(AppConfig.CACHE_DIR)
	if err != nil {
		Logger.Log.Fatalf("fail to create file cache: %v", err)
	}
	return store
}

func newMediaStore(fb *utils.FirebaseApp) media.Store {
	if AppConfig.MEDIA_BACKEND == app_config.MediaBackendS3 {
		store, err := media.NewS3Store(AppConfig.S3_BUCKET, AppConfig.S3_REGION, AppConfig.S3_URL_PREFIX)
		if err != nil {
			Logger.Log.Fatalf("fail to create s3 media store: %v", err)
		}
		return store
	}
	return media.NewFirebaseStore(AppConfig.FIREBASE_BUCKET, fb.Bucket)
}

func main() {
	flag.Parse()
	var err error
	AppConfig, err = app_config.ParseFamfeedAppConfig(*AppConfigPath)
	if err != nil {
		Logger.Log.Fatal(err)
	}
	if *UID == "" {
		Logger.Log.Fatal("-uid is required")
	}

	Logger.InitLogger(serviceName)
	utils.InitTracer(serviceName)
	defer utils.CloseTracer()
	if dotenv.IsProdEnv() {
		if err := utils.InitProfiler(serviceName); err != nil {
			Logger.Log.Errorf("fail to start profiler: %v", err)
		}
		defer utils.CloseProfiler()
	}

	ctx, cancel := context.WithCancel(context.Background())

	var (
		remoteClient remote.Client
		mediaStore   media.Store
		closer       session.SessionCloser
	)
	switch *Remote {
	case remoteFirebase:
		bucket := ""
		if AppConfig.MEDIA_BACKEND == app_config.MediaBackendFirebase {
			bucket = AppConfig.FIREBASE_BUCKET
		}
		fb, err := utils.InitFirebase(ctx, os.Getenv("FIREBASE_CREDENTIALS_PATH"), AppConfig.FIREBASE_DB_URL, bucket)
		if err != nil {
			Logger.Log.Fatal(err)
		}
		remoteClient = remote.NewFirebaseClient(fb.Database, time.Duration(AppConfig.POLL_INTERVAL_MS)*time.Millisecond)
		mediaStore = newMediaStore(fb)
		closer = session.RevokeTokensCloser(fb.Auth)
	case remoteMemory:
		store := remote.NewMemoryStore()
		if err := seedDemoFamily(ctx, store, *UID, time.Now()); err != nil {
			Logger.Log.Fatal(err)
		}
		remoteClient = store
		mediaStore = media.NewFakeStore()
		closer = demoCloser
		Logger.Log.Warn("running against an in-memory remote store, nothing is persisted remotely")
	default:
		Logger.Log.Fatalf("unknown -remote %q", *Remote)
	}

	localMirror, err := mirror.NewLocalMirror(AppConfig.MIRROR_ROOT, mirror.NewHTTPFetcher(fetchTimeout))
	if err != nil {
		Logger.Log.Fatal(err)
	}

	eventbus := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            100,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewStdLogger(false, false),
	)

	syncEngine, err := engine.New(engine.Config{
		Remote: remoteClient,
		Cache:  newCacheStore(),
		Mirror: localMirror,
		Bus:    eventbus,
	})
	if err != nil {
		Logger.Log.Fatal(err)
	}
	gw, err := gateway.New(gateway.Config{
		Remote:     remoteClient,
		Media:      mediaStore,
		Mirror:     localMirror,
		MaxRetries: AppConfig.WRITE_MAX_RETRIES,
	})
	if err != nil {
		Logger.Log.Fatal(err)
	}

	// Terminator signs the user out once their account or group is gone.
	terminator := session.NewTerminator(syncEngine, closer, eventbus)
	// Initialize all session modules here.
	modules := []session.Module{
		terminator,
		// Janitor keeps the widget mirror small.
		session.NewJanitor(localMirror, AppConfig.MIRROR_KEEP_DAYS, pruneInterval),
	}
	if AppConfig.STATSD_ADDR != "" {
		statsd, err := utils.NewDogStatsdClient(AppConfig.STATSD_ADDR)
		if err != nil {
			Logger.Log.Fatal(err)
		}
		defer statsd.Close()
		// Reporter reports sync metrics to datadog for monitoring purpose.
		modules = append(modules, session.NewReporter(session.ReporterConfig{Name: "reporter"}, statsd, eventbus))
	}
	runner := session.NewRunner(modules, ctx, cancel, eventbus)
	done := make(chan struct{})
	go func() {
		runner.Run()
		close(done)
	}()

	// Listeners may end the session on their first poll, so the terminator
	// must be subscribed before they start.
	if err := session.NewBootstrapper(syncEngine, terminator.Ready()).Start(ctx, *UID); err != nil {
		Logger.Log.Fatal(err)
	}

	var httpServer *http.Server
	if *ServeAddr != "" {
		router := server.NewRouter(serviceName, syncEngine)
		server.RegisterActions(router, syncEngine, gw)
		httpServer = &http.Server{Addr: *ServeAddr, Handler: router}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				Logger.Log.Errorf("state api stopped: %v", err)
			}
		}()
		Logger.Log.Infof("state api listening on %s", *ServeAddr)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverShutdown)
		httpServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	syncEngine.Close()
	runner.Shutdown()
	<-done
	eventbus.Close()
	Logger.Log.Info("famfeed stopped")
}
