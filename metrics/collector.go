// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/mau"
)

// Pipeline is the state a pipelineCollector samples.
type Pipeline interface {
	Cycle() uint64
	Now() uint64
	Latency(g mau.Gress) uint32
	TableNames() []string
}

// pipelineCollector samples pipeline state on every scrape.
type pipelineCollector struct {
	cycles  *prometheus.Desc
	ticks   *prometheus.Desc
	latency *prometheus.Desc
	tables  *prometheus.Desc

	p Pipeline
}

func newPipelineCollector(p Pipeline) *pipelineCollector {
	return &pipelineCollector{
		cycles: prometheus.NewDesc(prometheus.BuildFQName("mau", "pipeline", "cycles"),
			"Shows the number of packet cycles processed",
			nil, nil,
		),
		ticks: prometheus.NewDesc(prometheus.BuildFQName("mau", "pipeline", "clock_ticks"),
			"Shows the pipeline clock",
			nil, nil,
		),
		latency: prometheus.NewDesc(prometheus.BuildFQName("mau", "pipeline", "latency_cycles"),
			"Shows the configured pipeline latency",
			[]string{"gress"}, nil,
		),
		tables: prometheus.NewDesc(prometheus.BuildFQName("mau", "pipeline", "tables"),
			"Shows the number of logical tables in the program",
			nil, nil,
		),
		p: p,
	}
}

// Describe writes all descriptors to the prometheus desc channel.
func (pc *pipelineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pc.cycles
	ch <- pc.ticks
	ch <- pc.latency
	ch <- pc.tables
}

// Collect writes all metrics to prometheus metric channel.
func (pc *pipelineCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(pc.cycles, prometheus.CounterValue, float64(pc.p.Cycle()))
	ch <- prometheus.MustNewConstMetric(pc.ticks, prometheus.CounterValue, float64(pc.p.Now()))

	for _, g := range []mau.Gress{mau.Ingress, mau.Egress} {
		ch <- prometheus.MustNewConstMetric(pc.latency, prometheus.GaugeValue, float64(pc.p.Latency(g)), g.String())
	}

	ch <- prometheus.MustNewConstMetric(pc.tables, prometheus.GaugeValue, float64(len(pc.p.TableNames())))
}

// RegisterPipeline adds a collector for p to the registry of s.
func (s *Service) RegisterPipeline(p Pipeline) error {
	if err := s.reg.Register(newPipelineCollector(p)); err != nil {
		logger.MetricsLog.Errorln("pipeline collector registration failed:", err)
		return err
	}

	return nil
}

// Handler serves the registry of s.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}
