// Package bridge connects the KNXnet/IP tunnel to MQTT.
//
// This package is the daemon's orchestration layer. It forwards MQTT
// commands onto the KNX bus through the tunnel client and publishes
// every observed bus telegram as a retained MQTT state message.
//
// # Architecture
//
// The bridge operates as a translator between two buses:
//
//	┌─────────────┐          ┌─────────────────┐
//	│ Controllers │   MQTT   │     knxipd      │  KNXnet/IP
//	│             │◄────────►│   (this pkg)    │◄──────────► KNX Bus
//	└─────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Subscribe to knxip/set/+ and knxip/read/+ command topics
//   - Encode command values via DPT and send them through the tunnel
//   - Publish bus telegrams to knxip/state/{address}, retained
//   - Record seen group addresses and gateways to the database
//   - Feed traffic and tunnel counters to the time-series store
//   - Report daemon health on knxip/status
//   - Redial the tunnel with backoff when the connection drops
//
// # Topics
//
// Group addresses appear URL-encoded in topic levels because the
// slash is the MQTT level separator:
//
//	knxip/set/1%2F2%2F3    {"dpt": "1.001", "value": true}
//	knxip/read/1%2F2%2F3   (empty payload)
//	knxip/state/1%2F2%2F3  {"address": "1/2/3", "apci": "write", "data": "01", ...}
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package bridge
