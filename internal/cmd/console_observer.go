package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/corerun/internal/models"
	"github.com/harrison/corerun/internal/statusbus"
	"github.com/mattn/go-isatty"
)

// consoleStatusObserver renders a statusbus.Bus's StatusEvent stream to the
// terminal. Colors follow the teacher's fatih/color + go-isatty
// auto-detection (internal/logger/console.go): disabled automatically when
// stdout isn't a tty.
type consoleStatusObserver struct {
	out       io.Writer
	useColor  bool
	waveLabel *color.Color
	taskLabel *color.Color
	okLabel   *color.Color
	failLabel *color.Color
	hitlLabel *color.Color
}

func newConsoleStatusObserver(out *os.File) *consoleStatusObserver {
	useColor := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
	color.NoColor = !useColor
	return &consoleStatusObserver{
		out:       out,
		useColor:  useColor,
		waveLabel: color.New(color.FgCyan, color.Bold),
		taskLabel: color.New(color.FgWhite),
		okLabel:   color.New(color.FgGreen),
		failLabel: color.New(color.FgRed),
		hitlLabel: color.New(color.FgYellow, color.Bold),
	}
}

// Watch drains bus until it's told to stop, printing one line per event.
// Returns the unsubscribe function so the caller can stop it early.
func (o *consoleStatusObserver) watch(bus *statusbus.Bus) (stop func()) {
	events, unsubscribe := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		var lastSeq uint64
		for evt := range events {
			if gap := statusbus.Gap(lastSeq, evt.Seq); gap > 0 {
				o.render(models.StatusEvent{Kind: models.EventLagDropped, At: evt.At, Payload: map[string]any{"dropped": gap}})
			}
			lastSeq = evt.Seq
			o.render(evt)
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}

func (o *consoleStatusObserver) render(evt models.StatusEvent) {
	ts := evt.At.Format("15:04:05")
	if evt.At.IsZero() {
		ts = time.Now().Format("15:04:05")
	}

	switch evt.Kind {
	case models.EventRunStarted:
		o.waveLabel.Fprintf(o.out, "[%s] run started: %v\n", ts, evt.Payload)
	case models.EventRunFinished:
		o.waveLabel.Fprintf(o.out, "[%s] run finished: %v\n", ts, evt.Payload)
	case models.EventPlanning:
		fmt.Fprintf(o.out, "[%s] planning...\n", ts)
	case models.EventPlanFixup:
		o.failLabel.Fprintf(o.out, "[%s] plan fixup on %s: %v\n", ts, evt.TaskID, evt.Payload)
	case models.EventWaveStarted:
		o.waveLabel.Fprintf(o.out, "[%s] %s started\n", ts, evt.WaveName)
	case models.EventWaveCompleted:
		o.waveLabel.Fprintf(o.out, "[%s] %s completed: %v\n", ts, evt.WaveName, evt.Payload)
	case models.EventTaskStarted:
		o.taskLabel.Fprintf(o.out, "[%s]   task %s started\n", ts, evt.TaskID)
	case models.EventTaskOutcome:
		o.renderTaskOutcome(ts, evt)
	case models.EventRecoveryAction:
		fmt.Fprintf(o.out, "[%s]   task %s recovery: %v\n", ts, evt.TaskID, evt.Payload)
	case models.EventHITLRequested:
		o.hitlLabel.Fprintf(o.out, "[%s]   task %s awaiting human approval\n", ts, evt.TaskID)
	case models.EventHITLResolved:
		fmt.Fprintf(o.out, "[%s]   task %s HITL resolved: %v\n", ts, evt.TaskID, evt.Payload)
	case models.EventLagDropped:
		payload, _ := evt.Payload.(map[string]any)
		o.failLabel.Fprintf(o.out, "[%s] observer fell behind, dropped %v event(s)\n", ts, payload["dropped"])
	}
}

func (o *consoleStatusObserver) renderTaskOutcome(ts string, evt models.StatusEvent) {
	payload, _ := evt.Payload.(map[string]any)
	kind, _ := payload["kind"]
	if s, ok := payload["skipped"].(bool); ok && s {
		o.failLabel.Fprintf(o.out, "[%s]   task %s skipped (%v)\n", ts, evt.TaskID, payload["blocker"])
		return
	}
	if kind == models.OutcomeSuccess {
		o.okLabel.Fprintf(o.out, "[%s]   task %s succeeded\n", ts, evt.TaskID)
		return
	}
	o.failLabel.Fprintf(o.out, "[%s]   task %s failed: %v\n", ts, evt.TaskID, kind)
}
