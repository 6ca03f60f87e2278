// SPDX-License-Identifier: Apache-2.0
// Copyright 2022-present Open Networking Foundation

package mau

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/omec-project/mausim/logger"
)

const (
	// Default values
	stagesDefault           = 12
	clockHzDefault          = 1_250_000_000
	lfsrSeedDefault         = 0xace1ace1
	sweepIntervalExpDefault = 10
	pktGenQueueDefault      = 64
	metricsAddrDefault      = ":9102"

	// MaxStages bounds the next-table stage field (4 bits).
	MaxStages = 16

	TcamPriorityHighest = "highest"
	TcamPriorityLowest  = "lowest"

	PredicationEvaluateAll  = "evaluate_all"
	PredicationShortCircuit = "short_circuit"
)

// SimulatorConfig carries every knob of the engine. It is passed by pointer
// into each constructor; nothing in this package reads process-wide state.
type SimulatorConfig struct {
	LogLevel zapcore.Level `json:"log_level"`

	Stages  int    `json:"stages"`
	ClockHz uint64 `json:"clock_hz"`

	// UseMutex guards SRAMs against concurrent callers. Maprams always lock.
	UseMutex bool `json:"use_mutex"`

	// Relax flags turn configuration panics into logged warnings. Test-only.
	RelaxMultiWriteCheck bool `json:"relax_multi_write_check"`
	RelaxVpnCheck        bool `json:"relax_vpn_check"`
	RelaxRedCheck        bool `json:"relax_red_check"`

	TcamPriority     string `json:"tcam_priority"`
	PredicationMode  string `json:"predication_mode"`
	MeterTimeShift   uint   `json:"meter_time_shift"`
	LfsrSeed         uint32 `json:"lfsr_seed"`
	SweepIntervalExp uint   `json:"sweep_interval_exp"`

	PktGen  PktGenConfig  `json:"pktgen"`
	Metrics MetricsConfig `json:"metrics"`
	Program Program       `json:"program"`
}

// PktGenConfig : packet generator settings.
type PktGenConfig struct {
	Count      int    `json:"count"`
	QueueDepth int    `json:"queue_depth"`
	SrcMAC     string `json:"src_mac"`
	DstMAC     string `json:"dst_mac"`
	SrcIP      string `json:"src_ip"`
	DstIP      string `json:"dst_ip"`
	SrcPort    uint16 `json:"src_port"`
	DstPort    uint16 `json:"dst_port"`
	PayloadLen int    `json:"payload_len"`
	// FlowCount spreads packets across this many source ports.
	FlowCount int `json:"flow_count"`
}

// MetricsConfig : prometheus endpoint settings.
type MetricsConfig struct {
	Enable bool   `json:"enable"`
	Addr   string `json:"addr"`
}

// DefaultConfig returns a config with every default applied and no program.
func DefaultConfig() *SimulatorConfig {
	conf := &SimulatorConfig{}
	applyDefaults(conf)

	return conf
}

func applyDefaults(conf *SimulatorConfig) {
	if conf.Stages == 0 {
		conf.Stages = stagesDefault
	}

	if conf.ClockHz == 0 {
		conf.ClockHz = clockHzDefault
	}

	if conf.TcamPriority == "" {
		conf.TcamPriority = TcamPriorityHighest
	}

	if conf.PredicationMode == "" {
		conf.PredicationMode = PredicationEvaluateAll
	}

	if conf.LfsrSeed == 0 {
		conf.LfsrSeed = lfsrSeedDefault
	}

	if conf.SweepIntervalExp == 0 {
		conf.SweepIntervalExp = sweepIntervalExpDefault
	}

	if conf.PktGen.QueueDepth == 0 {
		conf.PktGen.QueueDepth = pktGenQueueDefault
	}

	if conf.PktGen.FlowCount == 0 {
		conf.PktGen.FlowCount = 1
	}

	if conf.Metrics.Enable && conf.Metrics.Addr == "" {
		conf.Metrics.Addr = metricsAddrDefault
	}
}

// validateConf checks that the given config reaches a baseline of correctness.
// Every problem is reported, not just the first.
func validateConf(conf *SimulatorConfig) error {
	var errs []error

	if conf.Stages < 1 || conf.Stages > MaxStages {
		errs = append(errs, ErrInvalidArgumentWithReason("conf.Stages", conf.Stages,
			fmt.Sprintf("must be in [1, %d]", MaxStages)))
	}

	switch conf.TcamPriority {
	case TcamPriorityHighest, TcamPriorityLowest:
	default:
		errs = append(errs, ErrInvalidArgumentWithReason("conf.TcamPriority", conf.TcamPriority, "invalid priority mode"))
	}

	switch conf.PredicationMode {
	case PredicationEvaluateAll, PredicationShortCircuit:
	default:
		errs = append(errs, ErrInvalidArgumentWithReason("conf.PredicationMode", conf.PredicationMode, "invalid predication mode"))
	}

	if conf.MeterTimeShift > 16 {
		errs = append(errs, ErrInvalidArgumentWithReason("conf.MeterTimeShift", conf.MeterTimeShift, "must be <= 16"))
	}

	if conf.SweepIntervalExp > 30 {
		errs = append(errs, ErrInvalidArgumentWithReason("conf.SweepIntervalExp", conf.SweepIntervalExp, "must be <= 30"))
	}

	if conf.PktGen.Count < 0 {
		errs = append(errs, ErrInvalidArgumentWithReason("conf.PktGen.Count", conf.PktGen.Count, "must not be negative"))
	}

	for i := range conf.Program.Tables {
		ts := &conf.Program.Tables[i]
		if ts.Stage < 0 || ts.Stage >= conf.Stages {
			errs = append(errs, ErrInvalidArgumentWithReason("table "+ts.Name+" stage", ts.Stage, "outside pipeline"))
		}

		if err := ts.validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return multierr.Combine(errs...)
}

// LoadConfigFile : parse json file and populate corresponding struct.
func LoadConfigFile(filepath string) (*SimulatorConfig, error) {
	jsonFile, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer jsonFile.Close()

	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, err
	}

	conf := &SimulatorConfig{}

	err = json.Unmarshal(byteValue, conf)
	if err != nil {
		return nil, err
	}

	// Set defaults, when missing.
	applyDefaults(conf)

	// Perform basic validation.
	err = validateConf(conf)
	if err != nil {
		return nil, err
	}

	logger.CfgLog.With("stages", conf.Stages, "tables", len(conf.Program.Tables)).Infoln("loaded simulator config")

	return conf, nil
}
