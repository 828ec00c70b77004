package identity

import (
	"github.com/benmeehan/pnp-device/pkg/file"
)

// Identity is the device identity assigned by the provisioning service.
type Identity struct {
	IDScope        string `json:"id_scope,omitempty"`
	RegistrationID string `json:"registration_id,omitempty"`
	AssignedHub    string `json:"assigned_hub,omitempty"`
	DeviceID       string `json:"device_id,omitempty"`
}

// DeviceInfoInterface defines methods for managing device identity.
type DeviceInfoInterface interface {
	LoadDeviceInfo() error
	SaveIdentity(identity Identity) error
	ClearIdentity() error
	GetDeviceID() string
	GetDeviceIdentity() *Identity
}

// DeviceInfo caches the device identity in a JSON file so a restarted
// device can connect without provisioning again.
type DeviceInfo struct {
	DeviceInfoFile string
	Identity       Identity
	fileOps        file.FileOperations
}

// NewDeviceInfo initializes a new DeviceInfo instance.
func NewDeviceInfo(filePath string, fileOps file.FileOperations) DeviceInfoInterface {
	return &DeviceInfo{
		DeviceInfoFile: filePath,
		fileOps:        fileOps,
		Identity:       Identity{},
	}
}

// LoadDeviceInfo reads the device information from the file and populates the Identity field.
// A missing file leaves the identity empty.
func (d *DeviceInfo) LoadDeviceInfo() error {
	exists, err := d.fileOps.IsFileExists(d.DeviceInfoFile)
	if err != nil {
		return err
	}
	if !exists {
		// Nothing cached yet
		d.Identity = Identity{}
		return nil
	}

	return d.fileOps.ReadJsonFile(d.DeviceInfoFile, &d.Identity)
}

// GetDeviceIdentity returns the current device Identity.
func (d *DeviceInfo) GetDeviceIdentity() *Identity {
	return &d.Identity
}

// GetDeviceID returns the current device ID.
func (d *DeviceInfo) GetDeviceID() string {
	return d.Identity.DeviceID
}

// SaveIdentity replaces the cached identity and writes it back to the file.
func (d *DeviceInfo) SaveIdentity(identity Identity) error {
	d.Identity = identity
	return d.fileOps.WriteJsonFile(d.DeviceInfoFile, d.Identity)
}

// ClearIdentity forgets the cached identity, forcing the next start to provision.
func (d *DeviceInfo) ClearIdentity() error {
	d.Identity = Identity{}
	return d.fileOps.RemoveFile(d.DeviceInfoFile)
}
