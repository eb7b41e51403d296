// Package mqtt provides the MQTT client for the SOMweb bridge.
//
// The bridge publishes door state, device availability, and diagnostics as
// retained documents, and receives door commands on per-door command topics.
// This package wraps eclipse/paho.mqtt.golang with connection management,
// automatic reconnection, subscription restoration, and an LWT so
// subscribers can detect an unexpectedly dead bridge.
//
// # Topic scheme
//
//	somweb/system/status              bridge status (retained, LWT)
//	somweb/{udi}/availability         device reachability (retained)
//	somweb/{udi}/door/{id}/state      door state (retained)
//	somweb/{udi}/door/{id}/set        door command
//	somweb/{udi}/firmware/state       firmware status (retained)
//	somweb/{udi}/diagnostics/state    diagnostics (retained)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	client.PublishRetained(topics.DoorState(udi, 1), payload)
package mqtt
