// Package find locates USB serial adapters, for choosing the port of a
// serial or Prologix instrument and for suggesting ports when opening one
// fails.
package find

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const sysClassTTY = "/sys/class/tty/"

// Port is a tty backed by a USB device, with the descriptor strings read
// from sysfs.
type Port struct {
	Name         string // ttyUSB0
	SysPath      string
	ProductID    string
	VendorID     string
	Manufacturer string
	Product      string
	Serial       string
}

func (p Port) String() string {
	return fmt.Sprintf("%s [%s:%s] %s / %s serial %s (%s)",
		p.Name, p.VendorID, p.ProductID, p.Manufacturer, p.Product, p.Serial, p.SysPath)
}

type Ports []Port

func (ps Ports) String() string {
	lines := make([]string, len(ps))
	for i, p := range ps {
		lines[i] = p.String()
	}
	return strings.Join(lines, "\n")
}

// Filter reports whether a port is the wanted adapter.
type Filter func(Port) bool

func ArduinoFilter(p Port) bool { return strings.Contains(p.Manufacturer, "Arduino") }

func PrologixFilter(p Port) bool {
	return strings.Contains(p.Product, "Prologix") || strings.Contains(p.Manufacturer, "Prologix")
}

// KeyspanFilter matches Keyspan USA-19H RS-232 adapters, commonly used
// with SRS lock-in amplifiers.
func KeyspanFilter(p Port) bool {
	return strings.Contains(p.Manufacturer, "Keyspan") || strings.HasPrefix(p.Product, "USA-19")
}

func SerialFilter(serial string) Filter {
	return func(p Port) bool { return p.Serial == serial }
}

// Find returns the tty name of the single USB serial port, or of the
// first one accepted by filter when filter is not nil.
func Find(filter Filter) (string, error) {
	ports, err := USBPorts()
	if err != nil {
		return "", err
	}
	return choose(ports, filter)
}

func choose(ports Ports, filter Filter) (string, error) {
	if filter != nil {
		for _, p := range ports {
			if filter(p) {
				return p.Name, nil
			}
		}
		return "", errors.New("no matching ttys found")
	}
	switch len(ports) {
	case 0:
		return "", errors.New("no matching ttys found")
	case 1:
		return ports[0].Name, nil
	}
	return "", fmt.Errorf("multiple ttys:\n%s", ports)
}

// USBPorts lists the ttys in /sys/class/tty whose device sits on a USB bus.
func USBPorts() (Ports, error) {
	return usbPorts(sysClassTTY)
}

func usbPorts(classDir string) (Ports, error) {
	entries, err := os.ReadDir(classDir)
	if err != nil {
		return nil, err
	}
	var ports Ports
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		// /sys/class/tty/ttyACM0 ->
		// /sys/devices/pci0000:00/0000:00:01.3/0000:02:00.0/usb1/1-10/1-10:1.0/tty/ttyACM0
		link := filepath.Join(classDir, e.Name())
		target, err := filepath.EvalSymlinks(link)
		if err != nil {
			log.Debug().Err(err).Str("path", link).Msg("skipping tty")
			continue
		}
		if !strings.Contains(target, "usb") {
			continue
		}
		p, err := describe(e.Name(), target)
		if err != nil {
			log.Debug().Err(err).Str("path", target).Msg("incomplete usb info")
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// describe fills a Port from the USB device directory above the tty's
// interface directory. Missing descriptor files are not errors; any other
// read error is returned along with what could be read.
func describe(name, target string) (Port, error) {
	p := Port{Name: name, SysPath: target}
	intf, err := filepath.EvalSymlinks(filepath.Join(target, "device"))
	if err != nil {
		return p, fmt.Errorf("usb tty lacks device dir: %w", err)
	}
	dev := filepath.Dir(intf)
	var errs error
	for file, dst := range map[string]*string{
		"idProduct":    &p.ProductID,
		"idVendor":     &p.VendorID,
		"manufacturer": &p.Manufacturer,
		"product":      &p.Product,
		"serial":       &p.Serial,
	} {
		b, err := os.ReadFile(filepath.Join(dev, file))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = err
		}
		*dst = strings.TrimSpace(string(b))
	}
	return p, errs
}

// Suggestions lists serial ports worth trying, USB adapters described
// first, for display when an instrument cannot be opened.
func Suggestions() []string {
	var out []string
	seen := map[string]bool{}
	if ports, err := USBPorts(); err == nil {
		for _, p := range ports {
			dev := "/dev/" + p.Name
			seen[dev] = true
			out = append(out, fmt.Sprintf("%s (%s %s)", dev, p.Manufacturer, p.Product))
		}
	}
	ports, err := serial.GetPortsList()
	if err != nil {
		log.Debug().Err(err).Msg("listing serial ports")
	}
	for _, p := range ports {
		if !seen[p] {
			out = append(out, p)
		}
	}
	return out
}
