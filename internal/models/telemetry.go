package models

// TemperatureTelemetry is the telemetry body of a thermostat.
type TemperatureTelemetry struct {
	Temperature Celsius `json:"temperature"`
}

// WorkingSetTelemetry is the telemetry body of the temperature controller root.
type WorkingSetTelemetry struct {
	WorkingSet float64 `json:"workingSet"` // KiB
}
