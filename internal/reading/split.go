package reading

import "time"

// RowReading is one sensor reading mapped onto a logical row.
type RowReading struct {
	Row      int
	Close    bool
	Distance float64
	Time     time.Time
}

// Split maps the two physical sensors of a sample onto row ids.
// rows[0] and rows[1] are the row ids for sensor A and B; a zero id
// means the sensor is unused and its reading is dropped.
func Split(s Sample, rows [2]int) []RowReading {
	out := make([]RowReading, 0, 2)
	if rows[0] > 0 {
		out = append(out, RowReading{Row: rows[0], Close: s.CloseA, Distance: s.DistA, Time: s.ReceivedAt})
	}
	if rows[1] > 0 {
		out = append(out, RowReading{Row: rows[1], Close: s.CloseB, Distance: s.DistB, Time: s.ReceivedAt})
	}
	return out
}
