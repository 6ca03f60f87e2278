// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

// Package sim wires the generator, pipeline, sweeper, P4Runtime translator
// and metrics endpoint into one runnable simulator.
package sim

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	reuse "github.com/libp2p/go-reuseport"

	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/mau"
	"github.com/omec-project/mausim/metrics"
	"github.com/omec-project/mausim/p4rt"
	"github.com/omec-project/mausim/pktgen"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	// P4InfoPath enables the P4Runtime translator.
	P4InfoPath string
	// EntriesPath is a text WriteRequest applied at startup. Needs P4InfoPath.
	EntriesPath string
}

// Summary reports one run.
type Summary struct {
	Packets     int
	Dropped     int
	ParseErrors int
	Expired     int64
	Cycles      uint64
}

type Simulator struct {
	conf *mau.SimulatorConfig

	pipe    *mau.Pipeline
	gen     *pktgen.Generator
	sweeper *mau.Sweeper
	prom    *metrics.Service
	trans   *p4rt.Translator

	expired atomic.Int64
}

func New(conf *mau.SimulatorConfig, opts Options) (*Simulator, error) {
	s := &Simulator{conf: conf}

	var pipeOpts []mau.PipelineOption

	if conf.Metrics.Enable {
		prom, err := metrics.NewPrometheusService()
		if err != nil {
			return nil, err
		}

		s.prom = prom
		pipeOpts = append(pipeOpts, mau.WithObserver(prom))
	}

	pipe, err := mau.NewPipeline(conf, pipeOpts...)
	if err != nil {
		return nil, err
	}

	s.pipe = pipe

	if s.prom != nil {
		if err := s.prom.RegisterPipeline(pipe); err != nil {
			return nil, err
		}
	}

	if s.gen, err = pktgen.NewGenerator(conf.PktGen); err != nil {
		return nil, err
	}

	s.sweeper = mau.NewSweeper(conf, pipe.IdleMaprams())
	s.sweeper.OnExpire = func(e mau.IdleExpiry) {
		s.expired.Add(1)
		logger.AppLog.With("stage", e.Stage, "row", e.Row, "col", e.Col, "index", e.Index, "subword", e.Subword).
			Debugln("entry idle")
	}

	if err := s.setupP4rt(opts); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Simulator) setupP4rt(opts Options) error {
	if opts.P4InfoPath == "" {
		if opts.EntriesPath != "" {
			return mau.ErrInvalidArgumentWithReason("entries", opts.EntriesPath, "needs a p4info file")
		}

		return nil
	}

	info, err := p4rt.LoadP4Info(opts.P4InfoPath)
	if err != nil {
		return err
	}

	s.trans = p4rt.NewTranslator(info, s.pipe)

	if opts.EntriesPath == "" {
		return nil
	}

	req, err := p4rt.LoadWriteRequest(opts.EntriesPath)
	if err != nil {
		return err
	}

	if err := s.trans.Write(req); err != nil {
		return err
	}

	logger.AppLog.With("entries", s.trans.Entries()).Infoln("table entries loaded")

	return nil
}

func (s *Simulator) Pipeline() *mau.Pipeline { return s.pipe }

// Translator is nil unless a P4Info file was given.
func (s *Simulator) Translator() *p4rt.Translator { return s.trans }

// Run pushes generated packets through the pipeline until the generator is
// done or ctx is cancelled. The sweeper runs alongside on the pipeline
// clock.
func (s *Simulator) Run(ctx context.Context) (Summary, error) {
	var (
		sum Summary
		wg  sync.WaitGroup
	)

	clock := make(chan uint64, 1)

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := s.sweeper.Run(ctx, clock); err != nil && !errors.Is(err, context.Canceled) {
			logger.AppLog.Errorln("sweeper failed:", err)
		}
	}()

	for pkt := range s.gen.Start(ctx) {
		phv, err := pktgen.ParsePhv(pkt.Data)
		if err != nil {
			sum.ParseErrors++
			logger.AppLog.With("seq", pkt.Seq).Warnln("packet dropped by parser:", err)

			continue
		}

		out := s.pipe.Process(phv)

		sum.Packets++
		if out.Drop {
			sum.Dropped++
		}

		select {
		case clock <- s.pipe.Now():
		default:
		}
	}

	close(clock)
	wg.Wait()

	sum.Cycles = s.pipe.Cycle()
	sum.Expired = s.expired.Load()

	logger.AppLog.With("packets", sum.Packets, "dropped", sum.Dropped, "expired", sum.Expired).Infoln("run finished")

	return sum, nil
}

// ListenMetrics opens the metrics listener with SO_REUSEPORT set.
func (s *Simulator) ListenMetrics(addr string) (net.Listener, error) {
	if s.prom == nil {
		return nil, mau.ErrUnsupported("metrics", "disabled")
	}

	return reuse.Listen("tcp", addr)
}

// ServeMetrics serves /metrics on ln until ctx is done.
func (s *Simulator) ServeMetrics(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.prom.Handler())

	httpSrv := &http.Server{Handler: mux, ReadHeaderTimeout: shutdownTimeout}

	errCh := make(chan error, 1)

	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	logger.MetricsLog.With("addr", ln.Addr().String()).Infoln("metrics server started")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.MetricsLog.Errorln("failed to shutdown http:", err)
		return err
	}

	logger.MetricsLog.Infoln("metrics server closed")

	return nil
}
