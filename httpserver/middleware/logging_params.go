/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"time"

	"github.com/ssgreg/logf"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
)

type loggableIntMap map[string]int64

func (lm loggableIntMap) EncodeLogfObject(e logf.FieldEncoder) error {
	for key, value := range lm {
		e.EncodeFieldInt64(key, value)
	}

	return nil
}

// LoggingParams accumulates extra data for the final "response completed" record
// of the Logging middleware. Downstream middlewares and handlers may add fields
// and time slots to it at any point of the request handling.
type LoggingParams struct {
	fields    []log.Field
	timeSlots loggableIntMap
}

// ExtendFields adds fields to be logged by the Logging middleware.
func (lp *LoggingParams) ExtendFields(fields ...log.Field) {
	lp.fields = append(lp.fields, fields...)
}

// AddTimeSlotInt adds a duration value to the named element of the time_slots map.
func (lp *LoggingParams) AddTimeSlotInt(name string, dur int64) {
	if lp.timeSlots == nil {
		lp.timeSlots = make(loggableIntMap, 1)
	}
	lp.timeSlots[name] += dur
}

// AddTimeSlotDurationInMs adds a duration in milliseconds to the named element of the time_slots map.
func (lp *LoggingParams) AddTimeSlotDurationInMs(name string, dur time.Duration) {
	lp.AddTimeSlotInt(name, dur.Milliseconds())
}
