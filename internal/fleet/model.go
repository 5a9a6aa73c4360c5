// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package fleet

// Vehicle states reported by the vehicle summary endpoint.
const (
	StateOnline  = "online"
	StateAsleep  = "asleep"
	StateOffline = "offline"
)

// Endpoints accepted by VehicleData.
const (
	EndpointLocationData = "location_data"
	EndpointVehicleState = "vehicle_state"
	EndpointDriveState   = "drive_state"
)

// ShiftStatePark is the drive_state.shift_state of a parked vehicle.
const ShiftStatePark = "P"

type envelope[T any] struct {
	Response T      `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Vehicle is the vehicle summary.
type Vehicle struct {
	ID          int64  `json:"id"`
	VIN         string `json:"vin"`
	DisplayName string `json:"display_name"`
	State       string `json:"state"`
	InService   bool   `json:"in_service"`
}

func (v *Vehicle) Online() bool {
	return v.State == StateOnline
}

// VehicleData is the subset of vehicle_data used to decide on sentry mode.
type VehicleData struct {
	Vehicle
	VehicleState VehicleState `json:"vehicle_state"`
	DriveState   DriveState   `json:"drive_state"`
}

type VehicleState struct {
	SentryMode          bool `json:"sentry_mode"`
	SentryModeAvailable bool `json:"sentry_mode_available"`
	Locked              bool `json:"locked"`
}

type DriveState struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// ShiftState is null while parked on some firmware versions.
	ShiftState *string `json:"shift_state"`
	Timestamp  int64   `json:"timestamp"`
}

// Parked reports whether the vehicle is in Park or reports no shift state.
func (d DriveState) Parked() bool {
	return d.ShiftState == nil || *d.ShiftState == "" || *d.ShiftState == ShiftStatePark
}

// CommandResult is the vehicle's answer to a command.
type CommandResult struct {
	Result bool   `json:"result"`
	Reason string `json:"reason"`
}

type sentryModeRequest struct {
	On bool `json:"on"`
}
