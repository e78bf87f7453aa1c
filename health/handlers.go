package health

import (
	"encoding/json"
	"net/http"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	"github.com/Financial-Times/go-logger"
	"github.com/Financial-Times/http-handlers-go/httphandlers"
	status "github.com/Financial-Times/service-status-go/httphandlers"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/Financial-Times/thesaurus-mapping-extractor/evs"
)

const GTGPath = "/__gtg"

// StatsSource reports fetch progress while a run is going.
type StatsSource interface {
	Stats() evs.StoreStats
}

type statsHandler struct {
	source StatsSource
}

func (h statsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	json.NewEncoder(w).Encode(h.source.Stats())
}

// RegisterHandlers builds the admin endpoints. registry may be nil, in which case
// the default go-metrics registry is used.
func RegisterHandlers(healthService *HealthService, stats StatsSource, registry metrics.Registry, requestLoggingEnabled bool) *http.ServeMux {
	logger.Info("Registering handlers")
	if registry == nil {
		registry = metrics.DefaultRegistry
	}

	router := mux.NewRouter()
	router.Handle("/stats", handlers.MethodHandler{
		"GET": statsHandler{source: stats},
	})

	var monitoringRouter http.Handler = router
	if requestLoggingEnabled {
		monitoringRouter = httphandlers.TransactionAwareRequestLoggingHandler(log.StandardLogger(), monitoringRouter)
	}
	monitoringRouter = httphandlers.HTTPMetricsHandler(registry, monitoringRouter)

	logger.Info("Registering admin handlers")

	thc := fthealth.TimedHealthCheck{HealthCheck: healthService.healthCheck(), Timeout: 10 * time.Second}

	serveMux := http.NewServeMux()
	serveMux.HandleFunc("/__health", fthealth.Handler(thc))
	serveMux.HandleFunc(GTGPath, healthService.gtgHandler)
	serveMux.HandleFunc(status.BuildInfoPath, status.BuildInfoHandler)
	serveMux.Handle("/", monitoringRouter)

	return serveMux
}
