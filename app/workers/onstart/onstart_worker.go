// Run on start
package onstart

import (
	"context"
	"fmt"
	"time"

	"heart2heart/m/app/ai"
	"heart2heart/m/app/config"
	"heart2heart/m/app/models"

	log "github.com/sirupsen/logrus"
	backoff "gopkg.in/cenkalti/backoff.v1"
)

var AI *ai.API

// Run verifies external collaborators before taking traffic. A rejected
// completion credential is a startup-fatal configuration error in
// production; transient unavailability is retried with backoff.
func Run(cfg *config.Config) {
	AI = ai.NewAPI(cfg)

	verifyGateway(cfg)
}

func verifyGateway(cfg *config.Config) {
	log.Info("[onstart] verifying completion API credential..")

	ctx := context.WithValue(context.Background(), models.UserContext{}, "SYSTEM:ONSTART")
	ctx = context.WithValue(ctx, models.ClientContext{}, "none")

	ping := func() error {
		if !AI.IsAvailable(ctx) {
			return fmt.Errorf("completion API not available")
		}
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	err := backoff.Retry(ping, policy)
	if err != nil {
		if cfg.Environment == "production" {
			log.Fatalf("[onstart] completion API unusable, refusing to start: %v", err)
		}
		log.Warnf("[onstart] completion API not reachable, chat turns will fail: %v", err)
		return
	}
	log.Info("[onstart] completion API verified")
}
