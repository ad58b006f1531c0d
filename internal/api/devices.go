package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.bug.st/serial"

	"github.com/banshee-data/gridrunner/internal/monitoring"
)

// SerialDeviceInfo describes a serial port the controller could be on.
type SerialDeviceInfo struct {
	PortPath     string `json:"port_path"`
	FriendlyName string `json:"friendly_name"`
}

// listPorts is replaced in tests.
var listPorts = serial.GetPortsList

// handleSerialDevices handles GET /api/serial/devices.
func (s *Server) handleSerialDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ports, err := listPorts()
	if err != nil {
		monitoring.Logf("api: error enumerating serial ports: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to enumerate serial ports")
		return
	}
	devices := make([]SerialDeviceInfo, 0, len(ports))
	for _, p := range ports {
		devices = append(devices, SerialDeviceInfo{PortPath: p, FriendlyName: getFriendlyName(p)})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

// getFriendlyName labels common controller attachments.
func getFriendlyName(portPath string) string {
	parts := strings.Split(portPath, "/")
	deviceName := parts[len(parts)-1]
	switch {
	case strings.HasPrefix(deviceName, "ttyUSB"):
		return fmt.Sprintf("USB Serial Adapter (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyACM"):
		return fmt.Sprintf("USB CDC Device (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyAMA"), strings.HasPrefix(deviceName, "ttyS0"):
		return fmt.Sprintf("Raspberry Pi Serial (%s)", deviceName)
	default:
		return deviceName
	}
}
