package health

import (
	"net/http"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	logger "github.com/Financial-Times/go-logger"
)

type HealthService struct {
	config *config
	Checks []fthealth.Check
}

type config struct {
	appSystemCode string
	appName       string
	description   string
}

func NewHealthService(appSystemCode string, appName string, description string, checks ...fthealth.Check) *HealthService {
	return &HealthService{
		config: &config{
			appSystemCode: appSystemCode,
			appName:       appName,
			description:   description,
		},
		Checks: checks,
	}
}

// GtgCheck fails on the first failing check.
func (svc *HealthService) GtgCheck() (bool, string) {
	for _, check := range svc.Checks {
		if msg, err := check.Checker(); err != nil {
			if msg == "" {
				msg = err.Error()
			}
			return false, msg
		}
	}
	return true, "OK"
}

func (svc *HealthService) gtgHandler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Content-Type", "text/plain; charset=US-ASCII")
	ok, msg := svc.GtgCheck()
	if !ok {
		logger.WithField("reason", msg).Warn("Good to go check failed")
		rw.WriteHeader(http.StatusServiceUnavailable)
	} else {
		rw.WriteHeader(http.StatusOK)
	}
	//nolint:errcheck
	rw.Write([]byte(msg))
}

func (svc *HealthService) healthCheck() fthealth.HealthCheck {
	return fthealth.HealthCheck{
		SystemCode:  svc.config.appSystemCode,
		Name:        svc.config.appName,
		Description: svc.config.description,
		Checks:      svc.Checks,
	}
}
