package hwid

import (
	"fmt"
	"strings"
)

// Canonical names for well-known PCI vendor IDs.
var vendorNames = map[string]string{
	"10DE": "NVIDIA",
	"1002": "AMD/ATI",
	"8086": "Intel",
	"14E4": "Broadcom",
	"10EC": "Realtek",
	"1969": "Marvell",
	"1B4B": "Marvell",
	"168C": "Qualcomm Atheros",
	"17AA": "Lenovo",
	"1028": "Dell",
	"103C": "HP",
	"1043": "ASUS",
	"1458": "Gigabyte",
	"1462": "MSI",
	"1179": "Toshiba",
	"104C": "Texas Instruments",
	"1217": "O2 Micro",
	"1180": "Ricoh",
}

// VendorName resolves a 4-digit vendor ID to its canonical name.
func VendorName(vendorID string) string {
	up := strings.ToUpper(strings.TrimSpace(vendorID))
	if name, ok := vendorNames[up]; ok {
		return name
	}
	if up == "" {
		return "Unknown vendor"
	}
	return fmt.Sprintf("Unknown vendor (%s)", up)
}

// Windows device setup class GUIDs.
var classGUIDs = map[string]string{
	"{4D36E968-E325-11CE-BFC1-08002BE10318}": "display",
	"{4D36E972-E325-11CE-BFC1-08002BE10318}": "net",
	"{4D36E96C-E325-11CE-BFC1-08002BE10318}": "media",
	"{36FC9E60-C465-11CF-8056-444553540000}": "usb",
	"{4D36E967-E325-11CE-BFC1-08002BE10318}": "diskdrive",
	"{4D36E96A-E325-11CE-BFC1-08002BE10318}": "hdc",
	"{4D36E96B-E325-11CE-BFC1-08002BE10318}": "keyboard",
	"{4D36E96F-E325-11CE-BFC1-08002BE10318}": "mouse",
	"{4D36E978-E325-11CE-BFC1-08002BE10318}": "ports",
	"{4D36E97D-E325-11CE-BFC1-08002BE10318}": "system",
	"{745A17A0-74D3-11D0-B6FE-00A0C90F57DA}": "hidclass",
	"{E0CBF06C-CD8B-4647-BB8A-263B43F0F974}": "bluetooth",
}

// ClassFromGUID maps a device setup class GUID to a short class name,
// or "unknown". Braces are optional.
func ClassFromGUID(guid string) string {
	up := strings.ToUpper(strings.TrimSpace(guid))
	if up == "" {
		return "unknown"
	}
	if !strings.HasPrefix(up, "{") {
		up = "{" + up + "}"
	}
	if name, ok := classGUIDs[up]; ok {
		return name
	}
	return "unknown"
}
