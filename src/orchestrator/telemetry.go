package orchestrator

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

const postmortemLineLimit = 100

// postmortemBuffer retains the last N diagnostic stderr lines for failure
// analysis. Telemetry lines that reached the Progress Hub are not kept here.
type postmortemBuffer struct {
	lines []string
}

func (b *postmortemBuffer) add(line string) {
	b.lines = append(b.lines, line)
	if len(b.lines) > postmortemLineLimit {
		b.lines = b.lines[len(b.lines)-postmortemLineLimit:]
	}
}

func (b *postmortemBuffer) tail() string {
	return strings.Join(b.lines, "\n")
}

// consumeTelemetry reads newline-delimited telemetry from a subprocess's
// standard error until EOF. Lines tagged progress are forwarded to the hub
// in emit order; lines tagged error are logged; anything else is diagnostic
// text kept only for postmortems.
func consumeTelemetry(strategyID eventmodels.StrategyID, r io.Reader, hub ProgressPublisher, postmortem *postmortemBuffer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		var telemetry eventmodels.TelemetryLine
		if err := json.Unmarshal([]byte(line), &telemetry); err != nil {
			postmortem.add(line)
			continue
		}

		switch telemetry.Type {
		case eventmodels.TelemetryLineTypeProgress:
			hub.Publish(strategyID, eventmodels.ProgressEvent{
				StrategyID: strategyID,
				Stage:      telemetry.Stage,
				Progress:   telemetry.Progress,
				Message:    telemetry.Message,
				ElapsedMs:  telemetry.ElapsedMs,
				BarsLoaded: telemetry.BarsLoaded,
				Timestamp:  time.Now().UTC(),
			})
		case eventmodels.TelemetryLineTypeError:
			log.WithFields(log.Fields{
				"strategy_id": strategyID,
			}).Errorf("strategy reported error: %s", telemetry.Message)
		default:
			postmortem.add(line)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Warnf("telemetry stream for strategy %s ended with error: %v", strategyID, err)
	}
}
