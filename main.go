package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heart2heart/m/app/admin"
	"heart2heart/m/app/config"
	"heart2heart/m/app/db/mongo"
	"heart2heart/m/app/db/redis"
	"heart2heart/m/app/metering"
	"heart2heart/m/app/models"
	"heart2heart/m/app/server"
	"heart2heart/m/app/sysbot"
	"heart2heart/m/app/util"
	"heart2heart/m/app/workers"
	"heart2heart/m/app/workers/onstart"
	"heart2heart/m/app/workers/resetusage"
	statusworker "heart2heart/m/app/workers/status"

	"github.com/DataDog/datadog-go/v5/statsd"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

func main() {
	done := make(chan struct{}, 1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	env := util.Env("ENV", "dev")
	dataDogClient, err := statsd.New("datadog-agent.default.svc.cluster.local:8125", statsd.WithNamespace("heart2heart."))
	if err != nil && env == "production" {
		log.Fatalf("error creating main DataDog client: %v", err)
	}

	// zero disables the periodic free-quota reset
	freeResetInterval := time.Duration(0)
	if raw := util.Env("FREE_RESET_INTERVAL", ""); raw != "" {
		freeResetInterval, err = time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("invalid FREE_RESET_INTERVAL %q: %v", raw, err)
		}
	}

	config.CONFIG = &config.Config{
		AppName:              "heart2heart",
		DataDogClient:        dataDogClient,
		Environment:          env,
		FreeResetInterval:    freeResetInterval,
		ListenAddress:        util.Env("LISTEN_ADDRESS", ":8080"),
		Model:                util.Env("MODEL", string(models.ChatGpt4oMini)),
		MongoDBConnection:    util.Env("MONGO_DB_CONNECTION_STRING"),
		MongoDBName:          util.Env("MONGO_DB_NAME", "heart2heart"),
		OpenAIAPIKey:         util.Env("OPENAI_API_KEY"),
		PaymentURL:           util.Env("PAYMENT_URL", "https://www.paypal.com/ncp/payment/W6UUT2A8RXZSG"),
		Redis: config.Redis{
			Host:     util.Env("REDIS_HOST"),
			Port:     "6379",
			Password: util.Env("REDIS_PASSWORD"),
		},
		StatusWorkerInterval:   time.Minute,
		AdminKeys:              admin.Keys(util.Env("ADMIN_KEY", "")),
		TelegramSystemBotToken: util.Env("TELEGRAM_SYSTEM_TOKEN", ""),
		TelegramSystemTo:       util.Env("TELEGRAM_SYSTEM_TO", ""),
	}

	err = dataDogClient.Count("main.start", 1, []string{"env:" + config.CONFIG.Environment}, 1)
	if err != nil {
		log.Errorf("error sending metric: %v", err)
	}
	if config.CONFIG.Environment == "production" {
		log.SetFormatter(&log.JSONFormatter{
			DisableTimestamp: true,
		})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
			DisableColors: false,
		})
		log.SetLevel(log.TraceLevel)
	}

	redis.RedisClient = redis.NewClient(config.CONFIG.Redis)
	mongo.MongoDBClient = mongo.NewClient(config.CONFIG.MongoDBConnection)

	// operator alert bot
	var systemBot *sysbot.Bot
	if env == "production" {
		systemBot, err = sysbot.NewSystemBot(config.CONFIG)
		if err != nil {
			log.Fatalf("ERROR creating system bot: %v", err)
		}
	} else {
		systemBot = sysbot.NewStubSystemBot(config.CONFIG)
	}

	// run onstart worker once
	onstart.Run(config.CONFIG)

	controller := metering.NewController(onstart.AI)
	srv := server.NewServer(controller)

	// create status worker
	statusworker.WORKER = workers.NewWorker(onstart.AI, systemBot, config.CONFIG, config.CONFIG.StatusWorkerInterval, statusworker.Run)
	go statusworker.WORKER.Start()

	// create free-quota reset worker when enabled
	if config.CONFIG.FreeResetInterval > 0 {
		resetusage.WORKER = workers.NewWorker(onstart.AI, systemBot, config.CONFIG, config.CONFIG.FreeResetInterval, resetusage.Run)
		go resetusage.WORKER.Start()
	}

	httpServer := &fasthttp.Server{
		Name:    config.CONFIG.AppName,
		Handler: fasthttp.TimeoutHandler(srv.Handler(), time.Second*30, "Request timeout"),
	}
	go TearDown(sigs, done, systemBot, httpServer, statusworker.WORKER, resetusage.WORKER)
	go func() {
		err := httpServer.ListenAndServe(config.CONFIG.ListenAddress)
		util.Assert(err == nil, "ListenAndServe:", err)
	}()

	successfulStartMessage := fmt.Sprintf("💙 %s %s started successfully 🚀 inside %s", config.CONFIG.AppName, config.APP_VERSION, util.Env("POD_NAME", "unknown"))
	systemBot.Alert(successfulStartMessage)

	<-done
	log.Info("Done")
}

func TearDown(sigs chan os.Signal, done chan struct{}, systemBot *sysbot.Bot, httpServer *fasthttp.Server, statusWorker *workers.Worker, resetWorker *workers.Worker) {
	<-sigs
	exitMessage := fmt.Sprintf("💙 %s bids farewell ❌ inside %s", config.CONFIG.AppName, util.Env("POD_NAME", "unknown"))
	systemBot.Alert(exitMessage)
	statusWorker.StopWorker()
	if resetWorker != nil {
		resetWorker.StopWorker()
	}

	err := httpServer.Shutdown()
	if err != nil {
		log.Errorf("TearDown: Shutdown http server: %v", err)
	}
	err = mongo.MongoDBClient.Disconnect(context.Background())
	if err != nil {
		log.Errorf("TearDown: Disconnecting from MongoDB: %v", err)
	}
	done <- struct{}{}
}
