package controller

import (
	"encoding/json"
	"time"
)

// Gateway actions.
const (
	ActionInit               = "init"
	ActionStatus             = "status"
	ActionSyncTime           = "sync_time"
	ActionStartProgram       = "start_program"
	ActionStopIrrigation     = "stop_irrigation"
	ActionDeactivateAllZones = "deactivate_all_zones"
	ActionStartZone          = "start_zone"
	ActionGetDelay           = "get_irrigation_delay"
	ActionSetDelay           = "set_irrigation_delay"
)

// RequestMessage is sent from the bridge to a controller gateway.
// Topic: rainbridge/request/{address}/{request_id}
type RequestMessage struct {
	RequestID  string         `json:"request_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ResponseMessage answers a RequestMessage.
// Topic: rainbridge/response/{address}/{request_id}
type ResponseMessage struct {
	RequestID string          `json:"request_id"`
	Timestamp time.Time       `json:"timestamp"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ResponseError  `json:"error,omitempty"`
}

// ResponseError describes a failed request.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusSnapshot is the data of a status response and the payload of a
// status event.
type StatusSnapshot struct {
	ActiveZones []int `json:"active_zones"`

	// Remaining is seconds left per zone.
	Remaining map[int]int `json:"remaining,omitempty"`

	// Programs is nil when the model does not report program state.
	Programs map[string]bool `json:"programs,omitempty"`

	RainSensor bool `json:"rain_sensor"`
}

// delayData is the data of get_irrigation_delay.
type delayData struct {
	Hours int `json:"hours"`
}
