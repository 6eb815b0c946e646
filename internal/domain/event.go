package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageKind discriminates relay socket messages. The set is closed:
// anything else is rejected at the boundary.
type MessageKind string

const (
	KindMedicationTaken  MessageKind = "medication_taken"
	KindConnectionStatus MessageKind = "connection_status"
	KindDeviceUpdate     MessageKind = "device_update"
	KindDeviceConnected  MessageKind = "device_connected"
	KindSimulation       MessageKind = "simulation"
)

// Device is a hardware sensor or web client known to the relay.
type Device struct {
	DeviceID    string    `json:"deviceId"`
	IP          string    `json:"ip"`
	Type        string    `json:"type"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Message is the relay wire format. Fields beyond Kind are populated
// depending on the kind; consumers must not assume more than their kind
// guarantees.
type Message struct {
	Kind       MessageKind `json:"type"`
	Medication string      `json:"medication,omitempty"`
	Timestamp  string      `json:"timestamp,omitempty"`
	DeviceID   string      `json:"deviceId,omitempty"`
	Status     string      `json:"status,omitempty"`
	Text       string      `json:"message,omitempty"`
	Devices    []Device    `json:"devices,omitempty"`
	IP         string      `json:"ip,omitempty"`
}

// Source maps a medication_taken message to an acknowledgement source.
func (m Message) Source() Source {
	if m.DeviceID == "simulation" {
		return SourceSimulation
	}
	return SourceIRSensor
}

// ParseMessage decodes and validates one relay message. Unknown kinds are
// rejected so a misbehaving peer cannot feed the core unmodelled input.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	switch msg.Kind {
	case KindMedicationTaken, KindConnectionStatus, KindDeviceUpdate,
		KindDeviceConnected, KindSimulation:
		return msg, nil
	default:
		return Message{}, fmt.Errorf("unknown message kind: %q", msg.Kind)
	}
}
