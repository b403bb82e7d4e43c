package hid

import "time"

// Device represents an opened HID device capable of report I/O.
type Device interface {
	Write([]byte) (int, error)                      // send output report
	ReadTimeout([]byte, time.Duration) (int, error) // read input report, bounded
	Close() error
}

// Feature exposes feature-report access when the backend supports it.
// Implementations may choose to support only a subset.
type Feature interface {
	SendFeatureReport([]byte) (int, error)
	GetFeatureReport([]byte) (int, error)
}

// Info represents a HID device descriptor.
type Info struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Product      string
	Manufacturer string
	UsagePage    uint16
	Usage        uint16
}

// Manager enumerates and opens HID devices.
type Manager interface {
	List() ([]Info, error)
	Open(path string) (Device, error)
	OpenVIDPID(vendorID, productID uint16) (Device, error)
}

// NewManager returns the HID manager for the named backend. Known
// backends are "hidapi" (default) and "usbhid"; unknown names fall
// back to hidapi.
func NewManager(backend string) (Manager, error) {
	if backend == "usbhid" {
		return newUSBHIDManager()
	}
	return newHidapiManager()
}
