package domain

import "math"

// ActiveAssignment returns the open assignment for a bed along with the total
// number of open assignments found. A count above one means the stored data
// violates the single-occupancy invariant; callers should surface that rather
// than repair it silently.
func ActiveAssignment(assignments []BedAssignment) (BedAssignment, int) {
	var found BedAssignment
	count := 0
	for _, a := range assignments {
		if a.Open() {
			if count == 0 {
				found = a
			}
			count++
		}
	}
	return found, count
}

// NumberSuffix extracts the leading run of digits from a bed number, e.g.
// "12B" yields 12. It reports false for numbers with no digits at all.
func NumberSuffix(number string) (int, bool) {
	value := 0
	seen := false
	for _, r := range number {
		if r < '0' || r > '9' {
			break
		}
		value = value*10 + int(r-'0')
		seen = true
	}
	if seen {
		return value, true
	}
	// Fall back to the first digit run anywhere in the string so formats
	// like "Bed 7" still sort numerically.
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			continue
		}
		value = 0
		for ; i < len(number) && number[i] >= '0' && number[i] <= '9'; i++ {
			value = value*10 + int(number[i]-'0')
		}
		return value, true
	}
	return 0, false
}

// NextBedNumber returns one past the highest numeric suffix among the given
// bed numbers. Numbers without digits are ignored; an empty or all-ignored
// list yields 1.
func NextBedNumber(existing []string) int {
	max := 0
	for _, n := range existing {
		if v, ok := NumberSuffix(n); ok && v > max {
			max = v
		}
	}
	return max + 1
}

// OccupancyStats summarizes bed availability across a set of beds.
type OccupancyStats struct {
	Available     int `json:"available"`
	Occupied      int `json:"occupied"`
	Reserved      int `json:"reserved"`
	Maintenance   int `json:"maintenance"`
	Total         int `json:"total"`
	OccupancyRate int `json:"occupancy_rate"`
}

// ComputeStats derives occupancy statistics from active beds. Total excludes
// maintenance beds; the rate is a rounded percentage and reports zero when no
// beds are in service.
func ComputeStats(beds []Bed) OccupancyStats {
	var stats OccupancyStats
	for _, b := range beds {
		if !b.Active {
			continue
		}
		switch b.Status {
		case BedAvailable:
			stats.Available++
		case BedOccupied:
			stats.Occupied++
		case BedReserved:
			stats.Reserved++
		case BedMaintenance:
			stats.Maintenance++
		}
	}
	stats.Total = stats.Available + stats.Occupied + stats.Reserved
	if stats.Total > 0 {
		stats.OccupancyRate = int(math.Round(float64(stats.Occupied) / float64(stats.Total) * 100))
	}
	return stats
}
