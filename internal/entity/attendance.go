package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainkeep/chainkeep/internal/ledger"
)

// Attendance status values.
const (
	AttendancePresent = "Present"
	AttendanceAbsent  = "Absent"
	AttendanceLate    = "Late"
	AttendanceExcused = "Excused"
)

// AttendanceEntry is the domain payload of an attendance transaction. Date is
// the logical day being recorded (YYYY-MM-DD), distinct from the block's own
// timestamp.
type AttendanceEntry struct {
	Date   string `json:"date"`
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// AttendanceRecord is an entry as read back from the chain, with the moment
// it was recorded.
type AttendanceRecord struct {
	AttendanceEntry
	Recorded   string `json:"recorded"`
	BlockIndex uint64 `json:"block_index"`
}

// AttendanceStats aggregates a member's full attendance history.
type AttendanceStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

func validStatus(status string) bool {
	switch status {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	}
	return false
}

// AppendAttendance mines a block carrying one attendance entry. An entry for
// a date that already exists anywhere in the history is rejected before any
// mining happens.
func (e *Entity) AppendAttendance(entry AttendanceEntry) error {
	if e.Kind != KindMember {
		return ErrNotMember
	}
	if _, err := time.Parse("2006-01-02", entry.Date); err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidEntry, entry.Date)
	}
	if !validStatus(entry.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEntry, entry.Status)
	}

	if existing, err := e.AttendanceByDate(entry.Date); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateDate, entry.Date)
	}

	tx, err := ledger.NewTransaction(TxAttendance, entry)
	if err != nil {
		return err
	}
	if _, err := e.Chain.Append([]ledger.Transaction{tx}); err != nil {
		return fmt.Errorf("failed to append attendance to %s: %w", e.ID, err)
	}
	return nil
}

// Attendance returns the full attendance history in chain order.
func (e *Entity) Attendance() ([]AttendanceRecord, error) {
	var records []AttendanceRecord

	for _, block := range e.Chain.Blocks {
		for _, tx := range block.Transactions {
			if tx.Type != TxAttendance {
				continue
			}
			var entry AttendanceEntry
			if err := json.Unmarshal(tx.Data, &entry); err != nil {
				return nil, fmt.Errorf("corrupt attendance payload at block %d: %w", block.Index, err)
			}
			records = append(records, AttendanceRecord{
				AttendanceEntry: entry,
				Recorded:        tx.Timestamp,
				BlockIndex:      block.Index,
			})
		}
	}

	return records, nil
}

// AttendanceByDate returns the record for the given logical date, or nil if
// no entry exists.
func (e *Entity) AttendanceByDate(date string) (*AttendanceRecord, error) {
	records, err := e.Attendance()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Date == date {
			return &records[i], nil
		}
	}
	return nil, nil
}

// AttendanceSummary aggregates counts per status over the whole history.
func (e *Entity) AttendanceSummary() (*AttendanceStats, error) {
	records, err := e.Attendance()
	if err != nil {
		return nil, err
	}

	stats := &AttendanceStats{ByStatus: make(map[string]int)}
	for _, r := range records {
		stats.Total++
		stats.ByStatus[r.Status]++
	}
	return stats, nil
}
