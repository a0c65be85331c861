package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ProtocolAddress identifies a remote session endpoint: a named peer plus a
// device id. Its string form `name.device_id` keys the session store.
type ProtocolAddress struct {
	Name     string
	DeviceID uint32
}

// NewProtocolAddress builds an address.
func NewProtocolAddress(name string, deviceID uint32) ProtocolAddress {
	return ProtocolAddress{Name: name, DeviceID: deviceID}
}

// String returns the canonical `name.device_id` form.
func (a ProtocolAddress) String() string {
	return fmt.Sprintf("%s.%d", a.Name, a.DeviceID)
}

// ParseProtocolAddress parses the canonical string form. The name may itself
// contain dots; the device id is everything after the last one.
func ParseProtocolAddress(s string) (ProtocolAddress, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return ProtocolAddress{}, ErrBadAddress
	}
	deviceID, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return ProtocolAddress{}, ErrBadAddress
	}
	return ProtocolAddress{Name: s[:i], DeviceID: uint32(deviceID)}, nil
}
