package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type promCollector struct {
	c *Collector

	connectionAttempts *prometheus.Desc
	messages           *prometheus.Desc
	audioChunks        *prometheus.Desc
	errors             *prometheus.Desc
	sessions           *prometheus.Desc
	responseTime       *prometheus.Desc
	uptime             *prometheus.Desc
}

// Prometheus exposes the collector's current values as Prometheus metrics
// under namespace.
func (c *Collector) Prometheus(namespace string) prometheus.Collector {
	return &promCollector{
		c: c,
		connectionAttempts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "connection_attempts_total"),
			"Connection attempts by outcome.", []string{"outcome"}, nil),
		messages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "messages_total"),
			"Protocol messages by direction.", []string{"direction"}, nil),
		audioChunks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "audio_chunks_total"),
			"Audio chunks received from the service.", nil, nil),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "errors_total"),
			"Errors by type.", []string{"type"}, nil),
		sessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_total"),
			"Finished sessions.", nil, nil),
		responseTime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "response_time_avg_seconds"),
			"Average time to the first response fragment over the recent window.", nil, nil),
		uptime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "uptime_seconds"),
			"Seconds since the collector was started or reset.", nil, nil),
	}
}

func (p *promCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.connectionAttempts
	ch <- p.messages
	ch <- p.audioChunks
	ch <- p.errors
	ch <- p.sessions
	ch <- p.responseTime
	ch <- p.uptime
}

func (p *promCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.c.Summary()

	ch <- prometheus.MustNewConstMetric(p.connectionAttempts, prometheus.CounterValue, float64(s.ConnectionSuccesses), "success")
	ch <- prometheus.MustNewConstMetric(p.connectionAttempts, prometheus.CounterValue, float64(s.ConnectionFailures), "failure")
	ch <- prometheus.MustNewConstMetric(p.messages, prometheus.CounterValue, float64(s.MessagesSent), "sent")
	ch <- prometheus.MustNewConstMetric(p.messages, prometheus.CounterValue, float64(s.MessagesReceived), "received")
	ch <- prometheus.MustNewConstMetric(p.audioChunks, prometheus.CounterValue, float64(s.AudioChunksProcessed))
	for typ, n := range s.Errors {
		ch <- prometheus.MustNewConstMetric(p.errors, prometheus.CounterValue, float64(n), typ)
	}
	ch <- prometheus.MustNewConstMetric(p.sessions, prometheus.CounterValue, float64(len(s.SessionDurations)))
	ch <- prometheus.MustNewConstMetric(p.responseTime, prometheus.GaugeValue, s.AverageResponseTime.Seconds())
	ch <- prometheus.MustNewConstMetric(p.uptime, prometheus.GaugeValue, s.Uptime.Seconds())
}
