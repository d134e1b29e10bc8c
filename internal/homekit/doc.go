// Package homekit publishes accessory records as a HomeKit bridge using
// github.com/brutella/hc.
//
// Each record kind maps to one HAP service:
//
//	irrigation_system  IrrigationSystem (sprinkler)
//	leak_sensor        LeakSensor, tripped by the rain sensor
//	valve              Valve with set/remaining duration
//	contact_sensor     ContactSensor, open while the zone waters
//	program_switch     Switch starting program A-D
//	stop_switch        momentary Switch stopping irrigation
//	delay_switch       Switch setting the rain delay
//
// Characteristics are re-read on every controller status event. Writes
// from HomeKit become controller commands.
package homekit
