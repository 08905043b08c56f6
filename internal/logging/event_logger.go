package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jordanella.com/paws-farm-go/internal/events"
)

// EventLogger subscribes to the event bus and appends every event to a file
type EventLogger struct {
	logger  *Logger
	bus     events.EventBus
	subIDs  []events.SubscriptionID
	logFile *os.File
}

// NewEventLogger creates logDir if needed and starts logging to a new
// timestamped file inside it.
func NewEventLogger(bus events.EventBus, logDir string) (*EventLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("events_%s.log", time.Now().Format("2006-01-02_15-04-05")))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := NewLogger("Events").SetOutputs(logFile).SetMinLevel(LogLevelInfo)
	el := &EventLogger{logger: logger, bus: bus, logFile: logFile}

	for _, eventType := range events.AllEventTypes {
		el.subIDs = append(el.subIDs, bus.Subscribe(eventType, el.handleEvent))
	}
	return el, nil
}

func (el *EventLogger) handleEvent(event events.Event) {
	context := map[string]interface{}{
		"source": event.Source,
	}
	if event.AccountID != 0 {
		context["account"] = event.AccountID
	}
	for k, v := range event.Data {
		context[k] = v
	}
	el.logger.InfoWithContext(string(event.Type), context)
}

// Close unsubscribes and closes the log file
func (el *EventLogger) Close() error {
	for _, id := range el.subIDs {
		el.bus.Unsubscribe(id)
	}
	el.subIDs = nil
	if el.logFile != nil {
		return el.logFile.Close()
	}
	return nil
}
