package main

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromExporter collects metrics in Prometheus format from an inbox server.
type PromExporter struct {
	address   string
	timeout   time.Duration
	namespace string

	scraper *Scraper

	up                   *prometheus.Desc
	sessionsLive         *prometheus.Desc
	sessionsTotal        *prometheus.Desc
	chatroomsLive        *prometheus.Desc
	chatroomsTotal       *prometheus.Desc
	inboundMessages      *prometheus.Desc
	outboundMessages     *prometheus.Desc
	duplicatesSuppressed *prometheus.Desc
	webhookRequests      *prometheus.Desc
	webhookRejected      *prometheus.Desc
	malloced             *prometheus.Desc
}

// NewPromExporter returns an initialized Prometheus exporter.
func NewPromExporter(server, namespace string, timeout time.Duration, scraper *Scraper) *PromExporter {
	return &PromExporter{
		address:   server,
		timeout:   timeout,
		namespace: namespace,
		scraper:   scraper,
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "up"),
			"If the inbox instance is reachable.",
			nil,
			nil,
		),
		sessionsLive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_live_count"),
			"Number of currently active sessions.",
			nil,
			nil,
		),
		sessionsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_total"),
			"Total number of sessions since instance start.",
			nil,
			nil,
		),
		chatroomsLive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "chatrooms_live_count"),
			"Number of chatrooms currently loaded in memory.",
			nil,
			nil,
		),
		chatroomsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "chatrooms_total"),
			"Total number of chatroom activations during instance lifetime.",
			nil,
			nil,
		),
		inboundMessages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "messages_inbound_total"),
			"Total number of inbound messages persisted.",
			nil,
			nil,
		),
		outboundMessages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "messages_outbound_total"),
			"Total number of outbound messages persisted.",
			nil,
			nil,
		),
		duplicatesSuppressed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "duplicates_suppressed_total"),
			"Total number of inbound messages dropped as duplicates.",
			nil,
			nil,
		),
		webhookRequests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "webhook_requests_total"),
			"Total number of provider webhook deliveries received.",
			nil,
			nil,
		),
		webhookRejected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "webhook_rejected_total"),
			"Total number of provider webhook deliveries rejected.",
			nil,
			nil,
		),
		malloced: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "malloced_bytes"),
			"Number of bytes of memory allocated and in use.",
			nil,
			nil,
		),
	}
}

// Describe describes all the metrics exported by the exporter. It
// implements prometheus.Collector.
func (e *PromExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.up
	ch <- e.sessionsLive
	ch <- e.sessionsTotal
	ch <- e.chatroomsLive
	ch <- e.chatroomsTotal
	ch <- e.inboundMessages
	ch <- e.outboundMessages
	ch <- e.duplicatesSuppressed
	ch <- e.webhookRequests
	ch <- e.webhookRejected
	ch <- e.malloced
}

// Collect fetches statistics from the configured inbox instance, and
// delivers them as Prometheus metrics. It implements prometheus.Collector.
func (e *PromExporter) Collect(ch chan<- prometheus.Metric) {
	up := float64(1)
	if stats, err := e.scraper.Scrape(); err != nil {
		log.Println("Failed to fetch or parse response", err)
		up = 0
	} else {
		if err := e.parseStats(ch, stats); err != nil {
			up = 0
		}
	}

	ch <- prometheus.MustNewConstMetric(e.up, prometheus.GaugeValue, up)
}

func (e *PromExporter) parseStats(ch chan<- prometheus.Metric, stats map[string]interface{}) error {
	err := firstError(
		e.parseAndUpdate(ch, e.sessionsLive, prometheus.GaugeValue, stats, "LiveSessions"),
		e.parseAndUpdate(ch, e.sessionsTotal, prometheus.CounterValue, stats, "TotalSessions"),
		e.parseAndUpdate(ch, e.chatroomsLive, prometheus.GaugeValue, stats, "LiveRooms"),
		e.parseAndUpdate(ch, e.chatroomsTotal, prometheus.CounterValue, stats, "TotalRooms"),
		e.parseAndUpdate(ch, e.inboundMessages, prometheus.CounterValue, stats, "InboundMessagesTotal"),
		e.parseAndUpdate(ch, e.outboundMessages, prometheus.CounterValue, stats, "OutboundMessagesTotal"),
		e.parseAndUpdate(ch, e.duplicatesSuppressed, prometheus.CounterValue, stats, "DuplicatesSuppressedTotal"),
		e.parseAndUpdate(ch, e.webhookRequests, prometheus.CounterValue, stats, "WebhookRequestsTotal"),
		e.parseAndUpdate(ch, e.webhookRejected, prometheus.CounterValue, stats, "WebhookRejectedTotal"),
		e.parseAndUpdate(ch, e.malloced, prometheus.GaugeValue, stats, "memstats.Alloc"),
	)

	return err
}

func (e *PromExporter) parseAndUpdate(ch chan<- prometheus.Metric, desc *prometheus.Desc, valueType prometheus.ValueType,
	stats map[string]interface{}, key string) error {
	v, err := numericAtPath(stats, key)
	if err == errKeyNotFound {
		// Counters the server has not incremented yet are simply absent
		// from the expvar dump. Report them as zero.
		v, err = 0, nil
	}
	if err != nil {
		return err
	}
	ch <- prometheus.MustNewConstMetric(desc, valueType, v)
	return nil
}

func firstError(errs ...error) error {
	for _, v := range errs {
		if v != nil {
			return v
		}
	}
	return nil
}
