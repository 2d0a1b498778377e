// Package events defines the station events emitted on the event bus.
//
// Available event types:
//   - PileStatusChanged: a pile moved between Available, Charging, Fault and Off
//   - RequestDispatched: a waiting request was placed on a pile
//   - RerouteCompleted: a fault or recovery pass redistributed queued vehicles
//   - BillIssued: a session was finalised and billed
package events
