package vm

import (
	"github.com/deepnoodle-ai/hookasm/op"
)

// StepMode controls when OnStep callbacks are triggered.
type StepMode uint8

const (
	// StepAll calls OnStep for every instruction.
	StepAll StepMode = iota

	// StepNone never calls OnStep.
	StepNone

	// StepSampled calls OnStep every N instructions.
	StepSampled
)

// ObserverConfig specifies what events an observer wants to receive.
// Use NewObserverConfig() to create configs with safe defaults.
type ObserverConfig struct {
	// StepMode controls OnStep callback frequency.
	StepMode StepMode

	// SampleInterval is the number of instructions between OnStep calls
	// when StepMode is StepSampled. Values <= 0 are treated as 1.
	SampleInterval int

	// ObserveCalls enables OnCall callbacks.
	ObserveCalls bool

	// ObserveReturns enables OnReturn callbacks.
	ObserveReturns bool
}

// NewObserverConfig creates a config with ObserveCalls and ObserveReturns
// enabled.
func NewObserverConfig(mode StepMode) ObserverConfig {
	return ObserverConfig{
		StepMode:       mode,
		SampleInterval: 1000,
		ObserveCalls:   true,
		ObserveReturns: true,
	}
}

// NormalizeConfig validates and clamps config values.
func NormalizeConfig(cfg ObserverConfig) ObserverConfig {
	if cfg.StepMode == StepSampled && cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 1
	}
	return cfg
}

// Observer receives execution events. Methods are called synchronously;
// returning false from any of them halts execution with ErrHalted.
//
// Implementations can embed NoOpObserver for methods they don't need.
type Observer interface {
	// Config is called once when the VM is created.
	Config() ObserverConfig

	OnStep(event StepEvent) bool
	OnCall(event CallEvent) bool
	OnReturn(event ReturnEvent) bool
}

// StepEvent describes a single instruction about to execute.
type StepEvent struct {
	// IP is the index of the instruction in the method body, labels
	// included.
	IP int

	Opcode     op.Code
	OpcodeName string

	// Method is "owner.name(desc)".
	Method string

	// StackDepth is the operand stack height in words.
	StackDepth int

	FrameDepth int
}

// CallEvent describes a method invocation.
type CallEvent struct {
	Method   string
	ArgCount int

	// Native is true when the callee is a Go function or a callback
	// context method.
	Native bool

	// FrameDepth is the call depth of the callee.
	FrameDepth int
}

// ReturnEvent describes a method returning normally.
type ReturnEvent struct {
	Method     string
	Value      any
	FrameDepth int
}

// NoOpObserver is an Observer implementation that does nothing. It uses
// StepAll with calls and returns enabled.
type NoOpObserver struct{}

func (NoOpObserver) Config() ObserverConfig {
	return NewObserverConfig(StepAll)
}

func (NoOpObserver) OnStep(StepEvent) bool     { return true }
func (NoOpObserver) OnCall(CallEvent) bool     { return true }
func (NoOpObserver) OnReturn(ReturnEvent) bool { return true }

var _ Observer = NoOpObserver{}
