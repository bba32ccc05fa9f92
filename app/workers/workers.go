package workers

import (
	"time"

	"heart2heart/m/app/ai"
	"heart2heart/m/app/config"
	"heart2heart/m/app/sysbot"
)

type Worker struct {
	AppName   string
	Interval  time.Duration
	AI        *ai.API
	Run       func()
	Stop      chan struct{}
	SystemBot *sysbot.Bot
}

func NewWorker(aiAPI *ai.API, systemBot *sysbot.Bot, cfg *config.Config, interval time.Duration, run func()) *Worker {
	return &Worker{
		AppName:   cfg.AppName,
		Interval:  interval,
		AI:        aiAPI,
		Run:       run,
		Stop:      make(chan struct{}),
		SystemBot: systemBot,
	}
}

func (w *Worker) Start() {
	w.Run()
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Run()
		case <-w.Stop:
			return
		}
	}
}

func (w *Worker) StopWorker() {
	w.Stop <- struct{}{}
}
