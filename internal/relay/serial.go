package relay

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tarm/serial"
)

// SerialReader reads "MEDICATION_TAKEN[:name]" lines from a wired Arduino
// sensor. The relay works without it; ESP8266 devices report over WiFi.
type SerialReader struct {
	port *serial.Port
}

func OpenSerial(portName string, baud int) (*SerialReader, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name: portName,
		Baud: baud,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return &SerialReader{port: port}, nil
}

func (r *SerialReader) Close() error {
	return r.port.Close()
}

// Run reads sensor lines until the context is cancelled, invoking handle
// with the optional medication name for each taken event.
func (r *SerialReader) Run(ctx context.Context, handle func(medication string)) {
	go func() {
		<-ctx.Done()
		r.port.Close()
	}()

	scanner := bufio.NewScanner(r.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		log.Printf("Received from serial sensor: %s", line)

		if !strings.Contains(line, "MEDICATION_TAKEN") {
			continue
		}

		var medication string
		if idx := strings.Index(line, ":"); idx >= 0 {
			medication = strings.TrimSpace(line[idx+1:])
		}
		handle(medication)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("Serial read error: %v", err)
	}
}
