package report

import (
	"strings"

	"github.com/atmx/fill-ledger/internal/model"
)

// MaxStatusWidth is the longest order status shown verbatim.
const MaxStatusWidth = 48

const (
	statusOK       = "200 OK"
	statusExecFail = "EXEC_FAIL"
	statusSkipped  = "SKIPPED"
	ellipsis       = "..."
)

// ShortenStatus keeps the informative part of a long order status: the HTTP
// result, the failure reason or the skip reason.
func ShortenStatus(s string, width int) string {
	if len([]rune(s)) <= width {
		return s
	}
	switch {
	case strings.Contains(s, statusOK):
		return statusOK
	case strings.Contains(s, statusExecFail):
		reason := s
		if _, after, ok := strings.Cut(s, statusExecFail+":"); ok {
			reason = after
		}
		prefix := statusExecFail + ":"
		if len([]rune(reason)) > width-len(prefix) {
			return prefix + truncate(reason, width-len(prefix)-len(ellipsis)) + ellipsis
		}
		return prefix + reason
	case strings.Contains(s, statusSkipped):
		_, reason, _ := strings.Cut(s, statusSkipped)
		if len([]rune(reason)) > width-len(statusSkipped) {
			return statusSkipped + truncate(reason, width-len(statusSkipped)-len(ellipsis)) + ellipsis
		}
		return statusSkipped + reason
	default:
		return truncate(s, width-len(ellipsis)) + ellipsis
	}
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func activityRow(r model.FillRecord) ActivityRow {
	row := ActivityRow{
		Line:       r.Line,
		Timestamp:  r.Timestamp,
		Instrument: r.InstrumentID,
		Direction:  r.RawDirection,
		Shares:     r.Shares,
		Price:      r.Price,
		USDValue:   r.USDValue,
		Status:     ShortenStatus(r.RawStatus, MaxStatusWidth),
		Outcome:    string(r.Status),
	}
	switch {
	case r.Timestamp != nil:
		row.Time = r.Timestamp.Format("01-02 15:04:05")
	case r.RawTimestamp != "":
		row.Time = r.RawTimestamp
	default:
		row.Time = "?"
	}
	if row.Direction == "" {
		row.Direction = string(r.Direction)
	}
	if row.Status == "" {
		row.Status = "?"
	}
	return row
}
