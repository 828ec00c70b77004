package models

import (
	"strconv"
	"time"
)

// Celsius is a temperature that marshals with two decimals, e.g. 22.00.
type Celsius float64

// MarshalJSON implements json.Marshaler.
func (c Celsius) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(c), 'f', 2, 64), nil
}

// MaxMinReport is the response to the getMaxMinReport command.
type MaxMinReport struct {
	MaxTemp   Celsius   `json:"maxTemp"`
	MinTemp   Celsius   `json:"minTemp"`
	AvgTemp   Celsius   `json:"avgTemp"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Reading is a temperature sample and when it was taken.
type Reading struct {
	Value Celsius
	At    time.Time
}

// RebootRequest is the payload of the reboot command. The hub sends the
// delay either bare or wrapped in an object.
type RebootRequest struct {
	Delay int `json:"delay"`
}
