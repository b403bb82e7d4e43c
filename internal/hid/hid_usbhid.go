package hid

import (
	"time"

	usbhid "rafaelmartins.com/p/usbhid"
)

// Pure-Go backend for systems without the hidapi shared library.
type usbManager struct{}

func newUSBHIDManager() (Manager, error) { return &usbManager{}, nil }

func (m *usbManager) List() ([]Info, error) {
	devs, err := usbhid.Enumerate(nil)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(devs))
	for _, d := range devs {
		out = append(out, Info{
			Path:         d.Path(),
			VendorID:     d.VendorId(),
			ProductID:    d.ProductId(),
			Product:      d.Product(),
			Manufacturer: d.Manufacturer(),
		})
	}
	return out, nil
}

func (m *usbManager) Open(path string) (Device, error) {
	d, err := usbhid.Get(func(dev *usbhid.Device) bool {
		return dev.Path() == path
	}, true, false)
	if err != nil {
		return nil, err
	}
	return &usbDevice{d}, nil
}

func (m *usbManager) OpenVIDPID(vendorID, productID uint16) (Device, error) {
	d, err := usbhid.Get(func(dev *usbhid.Device) bool {
		return dev.VendorId() == vendorID && dev.ProductId() == productID
	}, true, false)
	if err != nil {
		return nil, err
	}
	return &usbDevice{d}, nil
}

type usbDevice struct{ d *usbhid.Device }

func (d *usbDevice) Write(p []byte) (int, error) {
	// p carries the report ID at p[0]
	if len(p) == 0 {
		return 0, nil
	}
	if err := d.d.SetOutputReport(p[0], p[1:]); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ReadTimeout reads the next input report. The usbhid library has no
// timed read; the transport's per-read timeout degrades to a blocking
// read on this backend.
func (d *usbDevice) ReadTimeout(p []byte, _ time.Duration) (int, error) {
	rid, buf, err := d.d.GetInputReport()
	if err != nil {
		return 0, err
	}
	n := 0
	if rid != 0 {
		p[0] = rid
		n = 1
	}
	n += copy(p[n:], buf)
	return n, nil
}

func (d *usbDevice) SendFeatureReport(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := d.d.SetFeatureReport(p[0], p[1:]); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (d *usbDevice) GetFeatureReport(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf, err := d.d.GetFeatureReport(p[0])
	if err != nil {
		return 0, err
	}
	return copy(p[1:], buf) + 1, nil
}

func (d *usbDevice) Close() error { return d.d.Close() }
