package schedule

import (
	"math"
	"slices"
)

const dayTypeMondayToSunday = "MONDAY_TO_SUNDAY"

// WireBlock is one timetable block in the shape the Tadoº API expects.
type WireBlock struct {
	DayType             string      `json:"dayType"`
	Start               string      `json:"start"`
	End                 string      `json:"end"`
	GeolocationOverride bool        `json:"geolocationOverride"`
	Setting             WireSetting `json:"setting"`
}

type WireSetting struct {
	Type        string           `json:"type"`
	Power       string           `json:"power"`
	Temperature *WireTemperature `json:"temperature"`
}

type WireTemperature struct {
	Celsius    float64 `json:"celsius"`
	Fahrenheit float64 `json:"fahrenheit"`
}

// NewBlocks renders one interval as wire blocks. An interval that crosses
// midnight yields two blocks: (start, 00:00) and (00:00, end). The caller
// must place the second at the head and the first at the tail of the zone's
// block list, so the list starts and ends at midnight.
func NewBlocks(start, end string, temperature float64) []WireBlock {
	if start != "00:00" && end != "00:00" && timeValue(end) < timeValue(start) {
		return []WireBlock{
			newBlock(start, "00:00", temperature),
			newBlock("00:00", end, temperature),
		}
	}
	return []WireBlock{newBlock(start, end, temperature)}
}

func newBlock(start, end string, temperature float64) WireBlock {
	setting := WireSetting{Type: "HEATING", Power: "OFF"}
	if temperature > 0 {
		celsius := round1(temperature)
		setting.Power = "ON"
		setting.Temperature = &WireTemperature{
			Celsius:    celsius,
			Fahrenheit: round1(celsius*9/5 + 32),
		}
	}
	return WireBlock{
		DayType: dayTypeMondayToSunday,
		Start:   start,
		End:     end,
		Setting: setting,
	}
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}

// Render converts a compiled ring to the device's wire blocks. All reset
// sentinels must have been resolved by the merge pass before rendering.
func Render(intervals []Interval) []WireBlock {
	blocks := make([]WireBlock, 0, len(intervals)+1)
	for _, interval := range intervals {
		rendered := NewBlocks(interval.Start, interval.End, interval.Setpoint.Temperature)
		if len(rendered) == 2 {
			blocks = slices.Insert(blocks, 0, rendered[1])
			blocks = append(blocks, rendered[0])
			continue
		}
		blocks = append(blocks, rendered[0])
	}
	return blocks
}
