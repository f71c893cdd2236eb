package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	PRODUCT_ID               = 0xBFFF
	PRODUCT_NAME             = "MPP Solar Inverter"
	BASE_DEVICE_INSTANCE     = 288
	DEFAULT_FIRMWARE_VERSION = "unknown"
)

var ttyUSBRegexp = regexp.MustCompile(`^ttyUSB([0-9]+)$`)

type DeviceInfo struct {
	Port         string
	Protocol     string
	ProtocolId   string
	SerialNumber string
}

// UniqueId identifies the physical device, by serial number when known.
func (d DeviceInfo) UniqueId() string {
	if d.SerialNumber != "" {
		return "mppsolar_" + sanitizeId(d.SerialNumber)
	}
	// device node only, /dev/ttyUSB0 yields ttyusb0
	return fmt.Sprintf("mppsolar_%s_%s", sanitizeId(filepath.Base(d.Port)), sanitizeId(d.Protocol))
}

// PreferredDeviceInstance derives 288+x for /dev/ttyUSBx.
func PreferredDeviceInstance(port string) int {
	matches := ttyUSBRegexp.FindStringSubmatch(filepath.Base(port))
	if len(matches) != 2 {
		return BASE_DEVICE_INSTANCE
	}
	n, err := strconv.Atoi(matches[1])
	if err != nil {
		return BASE_DEVICE_INSTANCE
	}
	return BASE_DEVICE_INSTANCE + n
}

func sanitizeId(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, s)
}
