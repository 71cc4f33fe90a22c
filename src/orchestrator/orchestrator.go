package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
	"github.com/tradeforge/strategy-engine/src/ledger"
)

// Orchestrator launches strategy subprocesses inside their provisioned
// runtime environments and turns their output into run results, progress
// events and ledger records. It is safe to call concurrently for different
// strategy ids; same-id same-tick exclusion is the execution lock's job,
// enforced upstream.
type Orchestrator struct {
	store       StrategyStore
	provisioner EnvironmentProvisioner
	resolver    CredentialResolver
	hub         ProgressPublisher
	ledger      ExecutionLedger
	config      Config
}

func NewOrchestrator(store StrategyStore, provisioner EnvironmentProvisioner, resolver CredentialResolver, hub ProgressPublisher, executionLedger ExecutionLedger, config Config) *Orchestrator {
	return &Orchestrator{
		store:       store,
		provisioner: provisioner,
		resolver:    resolver,
		hub:         hub,
		ledger:      executionLedger,
		config:      config,
	}
}

// ExecuteBacktest runs a strategy against historical data and blocks until
// the run completes or times out.
func (o *Orchestrator) ExecuteBacktest(ctx context.Context, strategyID eventmodels.StrategyID, settings eventmodels.StrategySettings) eventmodels.RunResult {
	result := o.execute(ctx, strategyID, eventmodels.RunModeBacktest, settings, nil, o.config.BacktestTimeout)

	if result.Success && result.Backtest != nil {
		o.finalizeBacktest(ctx, strategyID, result.Backtest)
	}

	return result
}

// ExecuteBacktestAsync returns immediately; the result is delivered through
// the Progress Hub and the Ledger.
func (o *Orchestrator) ExecuteBacktestAsync(strategyID eventmodels.StrategyID, settings eventmodels.StrategySettings) {
	go func() {
		result := o.ExecuteBacktest(context.Background(), strategyID, settings)

		log.WithFields(log.Fields{
			"strategy_id": strategyID,
			"success":     result.Success,
		}).Info("async backtest finished")
	}()
}

// ExecuteLive resolves subscriber credentials and runs one live trading
// cycle. Zero active subscribers is a reported no-op, not an error, and no
// subprocess is spawned.
func (o *Orchestrator) ExecuteLive(ctx context.Context, strategyID eventmodels.StrategyID, settings eventmodels.StrategySettings) eventmodels.RunResult {
	subscribers, err := o.resolver.ActiveSubscribers(ctx, strategyID)
	if err != nil {
		result := eventmodels.NewFailedRunResult(eventmodels.RunModeLive, err)
		o.recordResult(ctx, strategyID, result, 0, 0)
		return result
	}

	if len(subscribers) == 0 {
		result := eventmodels.RunResult{
			Success:      false,
			Mode:         eventmodels.RunModeLive,
			ErrorMessage: "No active subscribers found",
		}

		o.recordResult(ctx, strategyID, result, 0, 0)

		log.WithFields(log.Fields{
			"strategy_id": strategyID,
		}).Info("live execution skipped, no active subscribers")

		return result
	}

	result := o.execute(ctx, strategyID, eventmodels.RunModeLive, settings, subscribers, o.config.LiveTimeout)

	if result.Success && result.Live != nil {
		trades := 0
		for _, summary := range result.Live.Subscribers {
			trades += summary.TradesGenerated
		}

		if err := o.store.UpdateLiveStats(ctx, strategyID, trades); err != nil {
			log.Errorf("failed to update live stats for strategy %s: %v", strategyID, err)
		}
	}

	return result
}

// execute provisions the environment, runs the strategy subprocess, and
// always writes exactly one execution record.
func (o *Orchestrator) execute(ctx context.Context, strategyID eventmodels.StrategyID, mode eventmodels.RunMode, settings eventmodels.StrategySettings, subscribers []eventmodels.SubscriberCredential, timeout time.Duration) eventmodels.RunResult {
	startedAt := time.Now()

	entry, err := o.store.StrategyEntry(ctx, strategyID)
	if err != nil {
		result := eventmodels.NewFailedRunResult(mode, fmt.Errorf("failed to load strategy entry: %w", err))
		o.recordResult(ctx, strategyID, result, time.Since(startedAt), len(subscribers))
		return result
	}

	interpreter, _, err := o.provisioner.Ensure(ctx, entry.ManifestText)
	if err != nil {
		// Degraded path: the provisioner handed back the host interpreter.
		// The run proceeds; a strategy that needs its manifest will fail
		// and be recorded like any other failed run.
		log.WithFields(log.Fields{
			"strategy_id": strategyID,
		}).Warnf("running degraded on host interpreter: %v", err)
	}

	request := eventmodels.RunRequest{
		Mode:         mode,
		StrategyFile: entry.FilePath,
		Settings:     settings,
		Subscribers:  subscribers,
	}

	result := o.runProcess(ctx, strategyID, interpreter, request, timeout)

	o.publishTerminal(strategyID, result)
	o.recordResult(ctx, strategyID, result, time.Since(startedAt), len(subscribers))

	return result
}

// runProcess launches the strategy entry point and enforces the wall-clock
// timeout by killing the whole process group. Untrusted strategy code gets
// no graceful-shutdown courtesy.
func (o *Orchestrator) runProcess(ctx context.Context, strategyID eventmodels.StrategyID, interpreter string, request eventmodels.RunRequest, timeout time.Duration) eventmodels.RunResult {
	requestJSON, err := json.Marshal(request)
	if err != nil {
		return eventmodels.NewFailedRunResult(request.Mode, fmt.Errorf("failed to marshal run request: %w", err))
	}

	cmd := exec.Command(interpreter, request.StrategyFile)
	cmd.Stdin = bytes.NewReader(requestJSON)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return eventmodels.NewFailedRunResult(request.Mode, &eventmodels.ProcessLaunchError{Err: err})
	}

	if err := cmd.Start(); err != nil {
		return eventmodels.NewFailedRunResult(request.Mode, &eventmodels.ProcessLaunchError{Err: err})
	}

	postmortem := &postmortemBuffer{}

	telemetryDone := make(chan struct{})
	go func() {
		defer close(telemetryDone)
		consumeTelemetry(strategyID, stderr, o.hub, postmortem)
	}()

	waitErr := make(chan error, 1)
	go func() {
		// The stderr pipe must be drained before Wait
		<-telemetryDone
		waitErr <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var runErr error
	select {
	case runErr = <-waitErr:
	case <-timer.C:
		o.killProcessGroup(cmd.Process.Pid)
		<-waitErr

		timeoutErr := &eventmodels.ProcessTimeoutError{Timeout: timeout.String()}
		result := eventmodels.NewFailedRunResult(request.Mode, timeoutErr)
		result.Trace = postmortem.tail()
		return result
	case <-ctx.Done():
		o.killProcessGroup(cmd.Process.Pid)
		<-waitErr

		result := eventmodels.NewFailedRunResult(request.Mode, ctx.Err())
		result.Trace = postmortem.tail()
		return result
	}

	if runErr != nil {
		result := eventmodels.NewFailedRunResult(request.Mode, fmt.Errorf("strategy process failed: %w", runErr))
		result.Trace = postmortem.tail()
		return result
	}

	// Exit code 0 does not imply success: the output must parse
	var result eventmodels.RunResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		parseErr := &eventmodels.ResultParseError{Output: stdout.String(), Err: err}
		failed := eventmodels.NewFailedRunResult(request.Mode, parseErr)
		failed.Trace = postmortem.tail()
		return failed
	}

	result.Mode = request.Mode

	return result
}

func (o *Orchestrator) killProcessGroup(pid int) {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		log.Warnf("failed to kill process group %d: %v", pid, err)
	}
}

// publishTerminal guarantees a terminal event is the last thing observers
// see, even when the strategy never emitted one itself.
func (o *Orchestrator) publishTerminal(strategyID eventmodels.StrategyID, result eventmodels.RunResult) {
	if latest, found := o.hub.Latest(strategyID); found && latest.Stage.IsTerminal() {
		return
	}

	event := eventmodels.ProgressEvent{
		StrategyID: strategyID,
		Stage:      eventmodels.ProgressStageComplete,
		Progress:   1.0,
		Message:    "run complete",
	}

	if !result.Success {
		event.Stage = eventmodels.ProgressStageError
		event.Message = result.ErrorMessage
	}

	o.hub.Publish(strategyID, event)
}

func (o *Orchestrator) recordResult(ctx context.Context, strategyID eventmodels.StrategyID, result eventmodels.RunResult, duration time.Duration, subscriberCount int) {
	record := ledger.NewExecutionRecord(strategyID, result.Mode, ledger.ExecutionStatusCompleted, time.Now().UTC())
	record.DurationMs = duration.Milliseconds()
	record.SubscriberCount = subscriberCount

	if !result.Success {
		record.Status = ledger.ExecutionStatusFailed
		record.ErrorMessage = result.ErrorMessage
	}

	if result.Backtest != nil {
		record.TradesGenerated = len(result.Backtest.Trades)
	}

	if result.Live != nil {
		for _, summary := range result.Live.Subscribers {
			record.TradesGenerated += summary.TradesGenerated
		}
	}

	if err := o.ledger.RecordExecution(ctx, record); err != nil {
		log.Errorf("failed to record execution for strategy %s: %v", strategyID, err)
	}
}
