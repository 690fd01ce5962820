package telemetry

// Fixed fleet-health thresholds. These are part of the design, not
// configuration.
const (
	lowBatteryThreshold = 40
	redZoneThreshold    = 20
	highTempThreshold   = 45
	highSpeedThreshold  = 80

	statusActive   = "active"
	statusInactive = "inactive"
)

// FleetSummary aggregates fleet health over the full record set.
// TotalDevices counts readings, not distinct devices; the field name is
// kept for compatibility with the public contract.
type FleetSummary struct {
	TotalDevices          int            `json:"totalDevices"`
	ActiveDevices         int            `json:"activeDevices"`
	LowBatteryDevices     int            `json:"lowBatteryDevices"`
	RedZoneDevices        int            `json:"redZoneDevices"`
	HighTempDevices       int            `json:"highTempDevices"`
	HighSpeedDevices      int            `json:"highSpeedDevices"`
	BatteryHealthGrouping map[string]int `json:"batteryHealthGrouping"`
}

// Summarize computes the fleet summary in a single pass. The result does
// not depend on the order of records. An empty set yields zero counts
// and an empty grouping.
func Summarize(records []Record) FleetSummary {
	summary := FleetSummary{
		BatteryHealthGrouping: make(map[string]int),
	}
	for _, record := range records {
		summary.TotalDevices++
		if record.Status == statusActive {
			summary.ActiveDevices++
		}
		if record.BatteryLevel < lowBatteryThreshold {
			summary.LowBatteryDevices++
		}
		if record.BatteryLevel < redZoneThreshold && record.Status == statusInactive {
			summary.RedZoneDevices++
		}
		if record.Temperature > highTempThreshold {
			summary.HighTempDevices++
		}
		if record.Speed > highSpeedThreshold {
			summary.HighSpeedDevices++
		}
		summary.BatteryHealthGrouping[record.BatteryHealthStatus]++
	}
	return summary
}
