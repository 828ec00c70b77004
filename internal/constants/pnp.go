package constants

// Model identifiers announced when connecting.
const (
	ThermostatModelID            = "dtmi:com:example:Thermostat;1"
	TemperatureControllerModelID = "dtmi:com:example:TemperatureController;1"
)

// Component names of the temperature controller.
const (
	Thermostat1Component       = "thermostat1"
	Thermostat2Component       = "thermostat2"
	DeviceInformationComponent = "deviceInformation"
)

// Property names
const (
	PropertyTargetTemperature      = "targetTemperature"
	PropertyMaxTempSinceLastReboot = "maxTempSinceLastReboot"
	PropertySerialNumber           = "serialNumber"

	PropertyManufacturer          = "manufacturer"
	PropertyModel                 = "model"
	PropertySoftwareVersion       = "swVersion"
	PropertyOSName                = "osName"
	PropertyProcessorArchitecture = "processorArchitecture"
	PropertyProcessorManufacturer = "processorManufacturer"
	PropertyTotalStorage          = "totalStorage"
	PropertyTotalMemory           = "totalMemory"
)

const (
	// DefaultTemperature is the reading a thermostat starts with.
	DefaultTemperature = 22.0

	// TemperatureHistoryLimit bounds the readings kept for getMaxMinReport.
	TemperatureHistoryLimit = 1024

	DescriptionSuccess         = "success"
	DescriptionNotANumber      = "desired temperature is not a number"
	DescriptionUnknownProperty = "property is not part of the component interface"
)
