package uio

import (
	"os"
	"path"
	"strings"
)

func readSysfs(file string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

func findDevices(sysfs string, name string) ([]string, error) {
	entries, err := os.ReadDir(sysfs)
	if err != nil {
		return nil, err
	}

	var results []string
	for _, m := range entries {
		entry := m.Name()

		if !strings.HasPrefix(entry, "uio") {
			continue
		}

		devName, err := readSysfs(path.Join(sysfs, entry, "name"))
		if err != nil {
			continue
		}

		if devName == name {
			results = append(results, "/dev/"+entry)
		}
	}

	return results, nil
}

/* FindDevices returns the device nodes of all UIO devices registered
 * under the given name. */
func FindDevices(name string) ([]string, error) {
	return findDevices(sysfsRoot, name)
}
