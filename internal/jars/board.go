// Package jars tracks which jar belongs in which row and where operators
// report finding them. Sensors only report occupancy; jar identity is
// operator-entered, so everything here is driven by manual actions.
package jars

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Jar check statuses, as reported from a checklist page.
const (
	StatusPresent   = "present"
	StatusMissing   = "missing"
	StatusUnchecked = "unchecked"
)

var (
	// ErrUnknownRow rejects an action naming a row that is not configured.
	ErrUnknownRow = errors.New("unknown row")
	// ErrUnknownJar rejects a status update for a jar not assigned to the row.
	ErrUnknownJar = errors.New("jar not assigned to row")
	// ErrBadStatus rejects a status outside present/missing.
	ErrBadStatus = errors.New("invalid status")
)

// Mismatch is one jar observed somewhere other than its assigned row.
// ExpectedRow is zero for jars that are not in the assignment table at all.
type Mismatch struct {
	Jar         string    `json:"jar"`
	ExpectedRow int       `json:"expected_row,omitempty"`
	ObservedRow int       `json:"found_in"`
	Time        time.Time `json:"time"`
}

// CheckState is one jar's operator-reported status.
type CheckState struct {
	Status string    `json:"status"`
	Row    int       `json:"row"`
	Time   time.Time `json:"time,omitempty"`
}

type observation struct {
	row int
	at  time.Time
}

// Board holds the static jar→row assignment plus the live operator-reported
// observations. Mutations arrive only through the single writer loop;
// readers take copies under the read lock.
type Board struct {
	mu       sync.RWMutex
	rows     map[int][]string // row id → assigned jar ids, in config order
	expected map[string]int   // jar id → assigned row
	observed map[string]observation
	status   map[string]CheckState
}

// NewBoard creates a Board from the assignment table.
func NewBoard(rows map[int][]string) *Board {
	expected := make(map[string]int)
	copied := make(map[int][]string, len(rows))
	for row, jarIDs := range rows {
		copied[row] = append([]string(nil), jarIDs...)
		for _, jar := range jarIDs {
			expected[jar] = row
		}
	}
	return &Board{
		rows:     copied,
		expected: expected,
		observed: make(map[string]observation),
		status:   make(map[string]CheckState),
	}
}

// RowIDs returns the configured row ids in ascending order.
func (b *Board) RowIDs() []int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]int, 0, len(b.rows))
	for id := range b.rows {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// HasRow reports whether the row id is configured.
func (b *Board) HasRow(row int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.rows[row]
	return ok
}

// RowJars returns the jars assigned to a row, in configured order.
func (b *Board) RowJars(row int) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	jarIDs, ok := b.rows[row]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRow, row)
	}
	return append([]string(nil), jarIDs...), nil
}

// ExpectedRow returns the row a jar is assigned to.
func (b *Board) ExpectedRow(jar string) (int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	row, ok := b.expected[jar]
	return row, ok
}

// MarkFound records that an operator found a jar in the given row. The
// observation persists until corrected by a later MarkFound or a "present"
// status update in the jar's own row. Returns the jar's assigned row, or
// false when the jar is not in the assignment table (the observation is
// still recorded, matching how unknown labels show up in practice).
func (b *Board) MarkFound(jar string, foundIn int, now time.Time) (int, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.rows[foundIn]; !ok {
		return 0, false, fmt.Errorf("%w: %d", ErrUnknownRow, foundIn)
	}
	b.observed[jar] = observation{row: foundIn, at: now}
	expected, known := b.expected[jar]
	return expected, known, nil
}

// SetStatus records an operator's present/missing report for a jar.
// The jar must be assigned to the given row. Marking a jar present in its
// own row also clears any standing misplaced observation for it.
func (b *Board) SetStatus(jar, status string, row int, now time.Time) error {
	if status != StatusPresent && status != StatusMissing {
		return fmt.Errorf("%w: %q", ErrBadStatus, status)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	jarIDs, ok := b.rows[row]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRow, row)
	}
	assigned := false
	for _, id := range jarIDs {
		if id == jar {
			assigned = true
			break
		}
	}
	if !assigned {
		return fmt.Errorf("%w: %s in row %d", ErrUnknownJar, jar, row)
	}

	b.status[jar] = CheckState{Status: status, Row: row, Time: now}
	if status == StatusPresent && b.expected[jar] == row {
		delete(b.observed, jar)
	}
	return nil
}

// RowStatus returns the check state of every jar assigned to a row,
// defaulting to unchecked.
func (b *Board) RowStatus(row int) (map[string]CheckState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	jarIDs, ok := b.rows[row]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRow, row)
	}
	out := make(map[string]CheckState, len(jarIDs))
	for _, jar := range jarIDs {
		if st, ok := b.status[jar]; ok {
			out[jar] = st
		} else {
			out[jar] = CheckState{Status: StatusUnchecked, Row: row}
		}
	}
	return out, nil
}

// Mismatches lists every jar whose observed row differs from its assigned
// row, sorted by jar id for stable output.
func (b *Board) Mismatches() []Mismatch {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Mismatch
	for jar, obs := range b.observed {
		expected, known := b.expected[jar]
		if known && expected == obs.row {
			continue
		}
		out = append(out, Mismatch{
			Jar:         jar,
			ExpectedRow: expected,
			ObservedRow: obs.row,
			Time:        obs.at,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Jar < out[j].Jar })
	return out
}
