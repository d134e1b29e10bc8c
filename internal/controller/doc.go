// Package controller is the boundary between rainbridge and the physical
// irrigation controllers.
//
// Handle describes one controller session. MQTTHandle implements it by
// talking JSON to a gateway process over MQTT; the gateway owns the
// controller's wire protocol, retries and backoff.
//
//	bridge  -> rainbridge/request/{address}/{request_id}
//	gateway -> rainbridge/response/{address}/{request_id}
//	gateway -> rainbridge/event/{address}/{status|rain_sensor_state|zone_enable|log}
//
// Notifications reach callers through Subscribe, which returns a
// Subscription that stops delivery when cancelled.
package controller
