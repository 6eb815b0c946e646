package relay

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medtick/medtick/internal/domain"
)

// Server fans hardware medication events out to every connected socket
// client. Delivery is best-effort per currently-open connection: a write
// failure evicts the client, there is no retry and no cross-client
// ordering guarantee.
type Server struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	devices map[*websocket.Conn]*domain.Device

	upgrader websocket.Upgrader
	events   *EventLog

	serialConnected bool
}

func NewServer(events *EventLog) *Server {
	return &Server{
		clients: make(map[*websocket.Conn]bool),
		devices: make(map[*websocket.Conn]*domain.Device),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The tracker UI and ESP8266 devices connect from anywhere
			// on the local network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		events: events,
	}
}

// SetSerialConnected records whether the wired sensor is attached; it
// only affects the status reported to clients.
func (s *Server) SetSerialConnected(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serialConnected = ok
}

func (s *Server) statusLocked() string {
	if s.serialConnected {
		return "connected"
	}
	return "wifi_only"
}

// HandleWS upgrades the connection, registers the client and starts its
// read loop.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	clientIP := r.RemoteAddr
	log.Printf("Client connected from %s", clientIP)

	s.mu.Lock()
	s.clients[conn] = true
	s.devices[conn] = &domain.Device{
		DeviceID:    fmt.Sprintf("client-%d", time.Now().Unix()),
		IP:          clientIP,
		Type:        "web",
		ConnectedAt: time.Now(),
	}
	greeting := domain.Message{
		Kind:    domain.KindConnectionStatus,
		Status:  s.statusLocked(),
		Text:    "Connected to medication sensor server",
		Devices: s.deviceListLocked(),
	}
	s.mu.Unlock()

	if err := conn.WriteJSON(greeting); err != nil {
		log.Printf("Write error: %v", err)
		conn.Close()
		return
	}

	go s.readClient(conn)
}

func (s *Server) readClient(conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		device := s.devices[conn]
		delete(s.clients, conn)
		delete(s.devices, conn)
		s.mu.Unlock()

		conn.Close()

		if device != nil {
			log.Printf("Device disconnected: %s", device.DeviceID)
			s.broadcastDeviceUpdate()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		msg, err := domain.ParseMessage(data)
		if err != nil {
			log.Printf("Rejected message from client: %v", err)
			continue
		}

		switch msg.Kind {
		case domain.KindDeviceConnected:
			s.registerDevice(conn, msg)

		case domain.KindMedicationTaken:
			s.mu.Lock()
			device := s.devices[conn]
			s.mu.Unlock()

			var deviceID string
			if device != nil {
				deviceID = device.DeviceID
			}
			s.BroadcastMedicationTaken(msg.Medication, deviceID)

		case domain.KindSimulation:
			s.BroadcastMedicationTaken(msg.Medication, "simulation")
		}
	}
}

// registerDevice upgrades an anonymous connection into a named hardware
// device and notifies everyone.
func (s *Server) registerDevice(conn *websocket.Conn, msg domain.Message) {
	s.mu.Lock()
	deviceID := msg.DeviceID
	if deviceID == "" {
		deviceID = fmt.Sprintf("device-%d", time.Now().Unix())
	}

	ip := msg.IP
	if ip == "" {
		if existing := s.devices[conn]; existing != nil {
			ip = existing.IP
		}
	}

	s.devices[conn] = &domain.Device{
		DeviceID:    deviceID,
		IP:          ip,
		Type:        "esp8266",
		ConnectedAt: time.Now(),
	}
	s.mu.Unlock()

	log.Printf("Device registered: %s at %s", deviceID, ip)
	s.broadcastDeviceUpdate()
}

// BroadcastMedicationTaken logs the event and fans it out to all clients.
func (s *Server) BroadcastMedicationTaken(medication, deviceID string) {
	now := time.Now()

	if s.events != nil {
		if err := s.events.Append(Event{
			Kind:       domain.KindMedicationTaken,
			Medication: medication,
			Timestamp:  now,
			DeviceID:   deviceID,
			ServerTime: now,
		}); err != nil {
			log.Printf("Failed to log medication event: %v", err)
		}
	}

	s.broadcast(domain.Message{
		Kind:       domain.KindMedicationTaken,
		Medication: medication,
		Timestamp:  now.Format(time.RFC3339),
		DeviceID:   deviceID,
	})
}

func (s *Server) broadcastDeviceUpdate() {
	s.mu.Lock()
	devices := s.deviceListLocked()
	s.mu.Unlock()

	s.broadcast(domain.Message{
		Kind:    domain.KindDeviceUpdate,
		Devices: devices,
	})
}

func (s *Server) broadcast(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(msg); err != nil {
			log.Printf("Error broadcasting to client: %v", err)
			client.Close()
			delete(s.clients, client)
			delete(s.devices, client)
		}
	}
}

func (s *Server) deviceListLocked() []domain.Device {
	devices := make([]domain.Device, 0, len(s.devices))
	for _, device := range s.devices {
		devices = append(devices, *device)
	}
	return devices
}

// HandleStatus reports server health and the connected device list.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sensor := "disconnected"
	if s.serialConnected {
		sensor = "connected"
	}
	devices := s.deviceListLocked()
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":           "online",
		"sensor":           sensor,
		"serverTime":       time.Now().Format(time.RFC3339),
		"connectedDevices": devices,
	})
}

// HandleLogs returns the recorded medication events.
func (s *Server) HandleLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var events []Event
	if s.events != nil {
		var err error
		events, err = s.events.ReadAll()
		if err != nil {
			log.Printf("Failed to read event log: %v", err)
			events = nil
		}
	}
	if events == nil {
		events = []Event{}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"logs": events})
}
