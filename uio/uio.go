/* Package uio maps the register window of a platform device exposed
 * through the Linux userspace I/O framework. */
package uio

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const sysfsRoot = "/sys/class/uio"

type Device struct {
	path string
	fd   int

	mem  []byte
	phys uintptr
	size int
}

/* Open takes either a device node like /dev/uio0 or name:<uio-name>,
 * which is looked up in sysfs. The first memory map of the device is
 * mapped read/write. */
func Open(spec string) (*Device, error) {
	p := spec
	if name, ok := isNameSpec(spec); ok {
		devs, err := FindDevices(name)
		if err != nil {
			return nil, err
		}
		if len(devs) == 0 {
			return nil, errors.New("UIO device not found")
		}
		if len(devs) > 1 {
			return nil, errors.New("more than one UIO device found")
		}

		p = devs[0]
	}

	d := &Device{
		path: p,
		fd:   -1,
	}

	if err := d.open(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) open() error {
	sys := path.Join(sysfsRoot, path.Base(d.path), "maps/map0")

	addr, err := readHex(path.Join(sys, "addr"))
	if err != nil {
		return fmt.Errorf("reading window address: %w", err)
	}
	size, err := readHex(path.Join(sys, "size"))
	if err != nil {
		return fmt.Errorf("reading window size: %w", err)
	}

	d.fd, err = unix.Open(d.path, unix.O_RDWR|unix.O_SYNC, 0600)
	if err != nil {
		return err
	}

	d.mem, err = unix.Mmap(d.fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}

	d.phys = uintptr(addr)
	d.size = int(size)
	return nil
}

/* Mem returns the mapped register window. */
func (d *Device) Mem() []byte {
	return d.mem
}

/* Phys returns the physical address of the window. */
func (d *Device) Phys() uintptr {
	return d.phys
}

func (d *Device) Close() error {
	if d.mem != nil {
		mem := d.mem
		d.mem = nil

		if err := unix.Munmap(mem); err != nil {
			return err
		}
	}

	if d.fd < 0 {
		return nil
	}

	fd := d.fd
	d.fd = -1

	return unix.Close(fd)
}

func isNameSpec(spec string) (string, bool) {
	if !strings.HasPrefix(spec, "name:") {
		return "", false
	}
	return spec[len("name:"):], true
}

func readHex(file string) (uint64, error) {
	data, err := readSysfs(file)
	if err != nil {
		return 0, err
	}

	return strconv.ParseUint(strings.TrimPrefix(data, "0x"), 16, 64)
}
