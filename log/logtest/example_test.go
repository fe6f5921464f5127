/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"fmt"

	"github.com/acronis/go-slowrate/log"
)

func Example() {
	dispatch := func(attempt int, logger log.FieldLogger) {
		logger.Info("operation dispatched", log.Int("attempt", attempt), log.String("request_id", "c0ffee"))
	}

	logRecorder := NewRecorder()
	dispatch(1, logRecorder)
	dispatch(2, logRecorder)

	// In real tests we can check that message with right fields were properly logged.

	for _, logEntry := range logRecorder.FindAllEntries("operation dispatched") {
		attempt, _ := logEntry.FieldInt("attempt")
		fmt.Printf("[%s] %s: request_id=%s attempt=%d\n",
			logEntry.Level, logEntry.Text, logEntry.FieldString("request_id"), attempt)
	}

	// Output:
	// [info] operation dispatched: request_id=c0ffee attempt=1
	// [info] operation dispatched: request_id=c0ffee attempt=2
}
