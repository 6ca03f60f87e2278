// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package sim

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	p4 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omec-project/mausim/internal/p4constants"
	"github.com/omec-project/mausim/mau"
	"github.com/omec-project/mausim/pktgen"
)

const (
	confPath    = "../../conf/mausim.json"
	p4infoPath  = "../../conf/p4info.txt"
	entriesPath = "../../conf/entries.txt"

	// 10.0.0.2, the generator's default destination.
	fwdKey = 0x0a000002
)

func loadConf(t *testing.T, count int, enableMetrics bool) *mau.SimulatorConfig {
	t.Helper()

	conf, err := mau.LoadConfigFile(confPath)
	require.NoError(t, err)

	conf.PktGen.Count = count
	conf.Metrics.Enable = enableMetrics

	return conf
}

func TestRun(t *testing.T) {
	s, err := New(loadConf(t, 20, false), Options{})
	require.NoError(t, err)
	assert.Nil(t, s.Translator())

	sum, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, sum.Packets)
	assert.Zero(t, sum.ParseErrors)
	assert.Equal(t, uint64(20), sum.Cycles)
}

func TestRunWithEntries(t *testing.T) {
	s, err := New(loadConf(t, 10, false), Options{P4InfoPath: p4infoPath, EntriesPath: entriesPath})
	require.NoError(t, err)
	require.NotNil(t, s.Translator())
	assert.Equal(t, 2, s.Translator().Entries())

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, sum.Packets)

	p := s.Pipeline()

	fwd, err := p.Table("fwd")
	require.NoError(t, err)

	entry := fwd.Lookup(p.Stages[0].Srams, fwdKey)
	require.True(t, entry.Hit)

	packets, _, err := p.ReadStats("fwd", entry.Entry)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), packets)

	assert.Equal(t, p4constants.TableFwd, s.Translator().TableID("fwd"))

	ce, err := s.Translator().ReadCounter(&p4.CounterEntry{
		CounterId: p4constants.CounterFwd,
		Index:     &p4.Index{Index: int64(entry.Entry)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), ce.GetData().GetPacketCount())

	t.Run("parsed packets hit the forwarding entry", func(t *testing.T) {
		g, err := pktgen.NewGenerator(p.Config().PktGen)
		require.NoError(t, err)

		data, err := g.Build(0)
		require.NoError(t, err)

		phv, err := pktgen.ParsePhv(data)
		require.NoError(t, err)

		out := p.Process(phv)
		assert.Equal(t, uint32(0x1234), out.Get(5))
		assert.True(t, out.IsValid(6), "acl entry matched the source port range")
	})
}

// Run under -race: the sweeper ages idletime words while packets hitting
// fwd clear them.
func TestRunSweepsAlongsidePackets(t *testing.T) {
	conf := loadConf(t, 3000, false)
	conf.UseMutex = false
	conf.SweepIntervalExp = 1

	s, err := New(conf, Options{P4InfoPath: p4infoPath, EntriesPath: entriesPath})
	require.NoError(t, err)

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3000, sum.Packets)
	assert.Equal(t, uint64(3000), sum.Cycles)
}

func TestNewErrors(t *testing.T) {
	for _, scenario := range []struct {
		description string
		opts        Options
	}{
		{"entries without p4info", Options{EntriesPath: entriesPath}},
		{"missing p4info", Options{P4InfoPath: "missing.txt"}},
		{"missing entries", Options{P4InfoPath: p4infoPath, EntriesPath: "missing.txt"}},
		{"entries that do not apply", Options{P4InfoPath: p4infoPath, EntriesPath: p4infoPath}},
	} {
		t.Run(scenario.description, func(t *testing.T) {
			_, err := New(loadConf(t, 1, false), scenario.opts)
			assert.Error(t, err)
		})
	}

	t.Run("bad generator template", func(t *testing.T) {
		conf := loadConf(t, 1, false)
		conf.PktGen.SrcIP = "not an ip"

		_, err := New(conf, Options{})
		assert.True(t, mau.IsInvalidArgument(err))
	})
}

func TestRunCancel(t *testing.T) {
	s, err := New(loadConf(t, 0, false), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sum, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Positive(t, sum.Packets)
}

func TestServeMetrics(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s, err := New(loadConf(t, 1, false), Options{})
		require.NoError(t, err)

		_, err = s.ListenMetrics("127.0.0.1:0")
		assert.Error(t, err)
	})

	s, err := New(loadConf(t, 5, true), Options{})
	require.NoError(t, err)

	ln, err := s.ListenMetrics("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- s.ServeMetrics(ctx, ln)
	}()

	_, err = s.Run(context.Background())
	require.NoError(t, err)

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)

	assert.Contains(t, string(body), "mau_pipeline_cycles 5")
	assert.Contains(t, string(body), `mau_packets_total{result="forwarded"} 5`)

	cancel()
	assert.NoError(t, <-done)
}
