package dispenser

import (
	"errors"
	"fmt"
)

// Process exit codes, grouped by subsystem.
const (
	ExitSuccess = 0
	ExitError   = 1

	ExitDetectorNotFound = 601
	ExitVariableNotFound = 602
	ExitWrongPayload     = 603

	ExitRunWeightsFileNotFound = 701
	ExitLoadConstants          = 702
	ExitLoadTT                 = 703
	ExitFrameConfiguration     = 704
	ExitRoutineNotFound        = 705
	ExitRunWeights             = 706
	ExitEngine                 = 707
	ExitConfiguration          = 708

	ExitStreamerFactoryNotFound = 801
	ExitCantOpenOutput          = 803
	ExitCantCloseOutput         = 804
	ExitPublish                 = 805

	ExitIdentityNotFoundInTT = 1101
	ExitTTNotFound           = 1102
)

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error { return e.Err }

// ErrRunWeightsFileNotFound is returned when the run weights file can't be read.
type ErrRunWeightsFileNotFound struct {
	Filename string
	Err      error
}

func (e *ErrRunWeightsFileNotFound) Error() string {
	return fmt.Sprintf("can't open run weights input file %q: %v", e.Filename, e.Err)
}

func (e *ErrRunWeightsFileNotFound) Unwrap() error { return e.Err }

// ErrRunWeights reports a malformed run weights table.
type ErrRunWeights struct {
	Line   int
	Reason string
}

func (e *ErrRunWeights) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid run weights at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("invalid run weights: %s", e.Reason)
}

type ErrLoadConstants struct {
	Detector  string
	Run       int
	Variation string
	Err       error
}

func (e *ErrLoadConstants) Error() string {
	return fmt.Sprintf("failed to load constants for %s for run %d with variation %s: %v",
		e.Detector, e.Run, e.Variation, e.Err)
}

func (e *ErrLoadConstants) Unwrap() error { return e.Err }

type ErrLoadTT struct {
	Detector  string
	Run       int
	Variation string
	Err       error
}

func (e *ErrLoadTT) Error() string {
	return fmt.Sprintf("failed to load translation table for %s for run %d with variation %s: %v",
		e.Detector, e.Run, e.Variation, e.Err)
}

func (e *ErrLoadTT) Unwrap() error { return e.Err }

// ErrFrameConfiguration is returned for frame or event durations that can't
// produce frames.
type ErrFrameConfiguration struct {
	Reason string
}

func (e *ErrFrameConfiguration) Error() string {
	return fmt.Sprintf("invalid frame configuration: %s", e.Reason)
}

// ErrConfiguration reports a configuration option outside its allowed range.
type ErrConfiguration struct {
	Option string
	Reason string
}

func (e *ErrConfiguration) Error() string {
	return fmt.Sprintf("invalid configuration option %s: %s", e.Option, e.Reason)
}

type ErrRoutineNotFound struct {
	Routine  string
	Detector string
}

func (e *ErrRoutineNotFound) Error() string {
	return fmt.Sprintf("digitization routine %q for detector %q not found", e.Routine, e.Detector)
}

// ErrDetectorNotFound is returned when hits arrive for a sensitive detector
// without a digitization routine.
type ErrDetectorNotFound struct {
	Detector string
}

func (e *ErrDetectorNotFound) Error() string {
	return fmt.Sprintf("no digitization routine registered for sensitive detector %q", e.Detector)
}

type ErrVariableNotFound struct {
	Variable string
}

func (e *ErrVariableNotFound) Error() string {
	return fmt.Sprintf("variable %q not found in digitized data", e.Variable)
}

type ErrWrongPayload struct {
	Missing string
}

func (e *ErrWrongPayload) Error() string {
	return fmt.Sprintf("digitized data can't form a frame payload, missing %q", e.Missing)
}

type ErrEngine struct {
	Run int
	Err error
}

func (e *ErrEngine) Error() string {
	return fmt.Sprintf("simulation engine failed on run %d: %v", e.Run, e.Err)
}

func (e *ErrEngine) Unwrap() error { return e.Err }

type ErrStreamerFactoryNotFound struct {
	Format string
}

func (e *ErrStreamerFactoryNotFound) Error() string {
	return fmt.Sprintf("streamer factory %q not found", e.Format)
}

type ErrCantOpenOutput struct {
	Name string
	Err  error
}

func (e *ErrCantOpenOutput) Error() string {
	return fmt.Sprintf("can't open output %q: %v", e.Name, e.Err)
}

func (e *ErrCantOpenOutput) Unwrap() error { return e.Err }

type ErrCantCloseOutput struct {
	Name string
	Err  error
}

func (e *ErrCantCloseOutput) Error() string {
	return fmt.Sprintf("can't close output %q: %v", e.Name, e.Err)
}

func (e *ErrCantCloseOutput) Unwrap() error { return e.Err }

// ErrPublish wraps a failure in one publish step of a streamer.
type ErrPublish struct {
	Step string
	Err  error
}

func (e *ErrPublish) Error() string {
	return fmt.Sprintf("error publishing %s: %v", e.Step, e.Err)
}

func (e *ErrPublish) Unwrap() error { return e.Err }

type ErrIdentityNotFoundInTT struct {
	Key string
}

func (e *ErrIdentityNotFoundInTT) Error() string {
	return fmt.Sprintf("identity %q not found in translation table", e.Key)
}

type ErrTTNotFound struct {
	Detector string
}

func (e *ErrTTNotFound) Error() string {
	return fmt.Sprintf("translation table not loaded for %q", e.Detector)
}

// ExitCode maps an error returned by this package to the process exit code
// the executables terminate with.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var (
		weightsFile *ErrRunWeightsFileNotFound
		weights     *ErrRunWeights
		constants   *ErrLoadConstants
		tt          *ErrLoadTT
		frame       *ErrFrameConfiguration
		routine     *ErrRoutineNotFound
		detector    *ErrDetectorNotFound
		variable    *ErrVariableNotFound
		payload     *ErrWrongPayload
		factory     *ErrStreamerFactoryNotFound
		open        *ErrCantOpenOutput
		closeErr    *ErrCantCloseOutput
		publish     *ErrPublish
		identity    *ErrIdentityNotFoundInTT
		ttMissing   *ErrTTNotFound
		engine      *ErrEngine
		config      *ErrConfiguration
	)
	switch {
	case errors.As(err, &weightsFile):
		return ExitRunWeightsFileNotFound
	case errors.As(err, &weights):
		return ExitRunWeights
	case errors.As(err, &constants):
		return ExitLoadConstants
	case errors.As(err, &tt):
		return ExitLoadTT
	case errors.As(err, &frame):
		return ExitFrameConfiguration
	case errors.As(err, &routine):
		return ExitRoutineNotFound
	case errors.As(err, &detector):
		return ExitDetectorNotFound
	case errors.As(err, &variable):
		return ExitVariableNotFound
	case errors.As(err, &payload):
		return ExitWrongPayload
	case errors.As(err, &factory):
		return ExitStreamerFactoryNotFound
	case errors.As(err, &open):
		return ExitCantOpenOutput
	case errors.As(err, &closeErr):
		return ExitCantCloseOutput
	case errors.As(err, &publish):
		return ExitPublish
	case errors.As(err, &identity):
		return ExitIdentityNotFoundInTT
	case errors.As(err, &ttMissing):
		return ExitTTNotFound
	case errors.As(err, &engine):
		return ExitEngine
	case errors.As(err, &config):
		return ExitConfiguration
	}
	return ExitError
}
