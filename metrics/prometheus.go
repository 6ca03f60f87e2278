// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

// Package metrics exports pipeline events and state to prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/omec-project/mausim/mau"
)

// Service counts engine events. It implements mau.Observer and owns a
// private registry.
type Service struct {
	reg *prometheus.Registry

	packets *prometheus.CounterVec
	latency prometheus.Histogram

	lookups    *prometheus.CounterVec
	colors     *prometheus.CounterVec
	red        *prometheus.CounterVec
	collisions *prometheus.CounterVec
}

var _ mau.Observer = (*Service)(nil)

func NewPrometheusService() (*Service, error) {
	reg := prometheus.NewRegistry()

	packets := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "mau_packets_total",
		Help: "Counter for packets leaving the pipeline",
	}, []string{"result"})

	latency := promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Name:    "mau_packet_latency_cycles",
		Help:    "Cycles from pipeline entry to the last stage end-of-packet point",
		Buckets: prometheus.LinearBuckets(8, 8, 12),
	})

	lookups := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "mau_table_lookups_total",
		Help: "Counter for logical table lookups",
	}, []string{"stage", "table", "result"})

	colors := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "mau_meter_colors_total",
		Help: "Counter for meter colors produced",
	}, []string{"stage", "color"})

	red := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "mau_red_decisions_total",
		Help: "Counter for random early detection decisions",
	}, []string{"stage", "decision"})

	collisions := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "mau_bus_conflicts_total",
		Help: "Counter for addresses dropped because a bus was already driven",
	}, []string{"stage", "row", "bus"})

	s := &Service{
		reg: reg,

		packets: packets,
		latency: latency,

		lookups:    lookups,
		colors:     colors,
		red:        red,
		collisions: collisions,
	}

	return s, nil
}

// Registry returns the registry holding every metric of s.
func (s *Service) Registry() *prometheus.Registry { return s.reg }

func (s *Service) PacketProcessed(latencyCycles uint32, dropped bool) {
	result := "forwarded"
	if dropped {
		result = "dropped"
	}

	s.packets.WithLabelValues(result).Inc()
	s.latency.Observe(float64(latencyCycles))
}

func (s *Service) TableLookup(stage, table int, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	s.lookups.WithLabelValues(strconv.Itoa(stage), strconv.Itoa(table), result).Inc()
}

func (s *Service) MeterColor(stage int, c mau.Color) {
	s.colors.WithLabelValues(strconv.Itoa(stage), c.String()).Inc()
}

func (s *Service) RedDecision(stage int, drop bool) {
	decision := "pass"
	if drop {
		decision = "drop"
	}

	s.red.WithLabelValues(strconv.Itoa(stage), decision).Inc()
}

func (s *Service) BusConflict(stage, row int, bus string) {
	s.collisions.WithLabelValues(strconv.Itoa(stage), strconv.Itoa(row), bus).Inc()
}

// Stop drops every collector from the registry.
func (s *Service) Stop() error {
	s.reg.Unregister(s.packets)
	s.reg.Unregister(s.latency)
	s.reg.Unregister(s.lookups)
	s.reg.Unregister(s.colors)
	s.reg.Unregister(s.red)
	s.reg.Unregister(s.collisions)

	return nil
}
