package scanner

import (
	"strings"

	"github.com/driverdock/driverdock/pkg/hwid"
)

// parseEnumDevices parses `pnputil /enum-devices /ids /connected`
// output. Devices are delimited by "Instance ID" lines; indented lines
// continue the hardware/compatible ID lists.
func parseEnumDevices(output string) []Device {
	var (
		devices []Device
		current *Device
		listKey string
	)

	flush := func() {
		if current != nil && current.InstanceID != "" {
			devices = append(devices, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		indented := line[0] == ' ' || line[0] == '\t'
		if indented && current != nil {
			value := strings.TrimSpace(line)
			switch listKey {
			case "hardware ids", "compatible ids":
				if hwid.Valid(value) {
					current.HardwareIDs = append(current.HardwareIDs, value)
				}
			}
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		listKey = ""

		switch key {
		case "instance id":
			flush()
			current = &Device{InstanceID: value}
		case "device description":
			if current != nil {
				current.Name = value
			}
		case "class name":
			if current != nil {
				current.Class = strings.ToLower(value)
			}
		case "class guid":
			if current != nil && current.Class == "" {
				current.Class = hwid.ClassFromGUID(value)
			}
		case "manufacturer name":
			if current != nil {
				current.Manufacturer = value
			}
		case "driver version":
			if current != nil {
				current.DriverVersion = value
			}
		case "driver date":
			if current != nil {
				current.DriverDate = value
			}
		case "hardware ids", "compatible ids":
			listKey = key
			if current != nil && value != "" && hwid.Valid(value) {
				current.HardwareIDs = append(current.HardwareIDs, value)
			}
		}
	}
	flush()

	return devices
}
