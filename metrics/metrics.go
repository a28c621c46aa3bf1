// Package metrics exposes Prometheus counters for the deploy pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector counts pipeline activity. Constructed once and shared by every
// in-flight pipeline.
type Collector struct {
	provisionTotal  *prometheus.CounterVec
	deploysStarted  prometheus.Counter
	deploysFinished *prometheus.CounterVec
	filesUploaded   prometheus.Counter
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		provisionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontbase_provision_total",
			Help: "Workflow provisioning attempts by outcome.",
		}, []string{"outcome"}),
		deploysStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frontbase_deploys_started_total",
			Help: "Deploy pipelines started.",
		}),
		deploysFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontbase_deploys_finished_total",
			Help: "Deploy pipelines finished by outcome.",
		}, []string{"outcome"}),
		filesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frontbase_files_uploaded_total",
			Help: "Build output files uploaded to object storage.",
		}),
	}
	reg.MustRegister(c.provisionTotal, c.deploysStarted, c.deploysFinished, c.filesUploaded)
	return c
}

func (c *Collector) RecordProvision(outcome string) {
	c.provisionTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordDeployStarted() {
	c.deploysStarted.Inc()
}

func (c *Collector) RecordDeployFinished(outcome string) {
	c.deploysFinished.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordFilesUploaded(count int) {
	c.filesUploaded.Add(float64(count))
}

// Handler serves the default registry scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
