package iothub

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionString holds the fields of a device connection string such as
// "HostName=hub.azure-devices.net;DeviceId=dev1;SharedAccessKey=...".
type ConnectionString struct {
	HostName        string
	DeviceID        string
	SharedAccessKey string
}

// ParseConnectionString parses a semicolon separated device connection string.
func ParseConnectionString(s string) (*ConnectionString, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("connection string is empty")
	}

	cs := &ConnectionString{}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		// keys may not contain '=', base64 values may end with it
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed connection string segment %q", part)
		}
		switch key {
		case "HostName":
			cs.HostName = value
		case "DeviceId":
			cs.DeviceID = value
		case "SharedAccessKey":
			cs.SharedAccessKey = value
		case "ModuleId":
			return nil, errors.New("module identities are not supported")
		case "x509":
			return nil, errors.New("x509 authentication is not supported")
		}
	}

	switch {
	case cs.HostName == "":
		return nil, errors.New("connection string has no HostName")
	case cs.DeviceID == "":
		return nil, errors.New("connection string has no DeviceId")
	case cs.SharedAccessKey == "":
		return nil, errors.New("connection string has no SharedAccessKey")
	}

	return cs, nil
}
