// Package handler implements the status API endpoints.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const dateLayout = "2006-01-02"

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseRange reads from/to as YYYY-MM-DD. to covers its whole day. Missing
// bounds default to the trailing defaultDays ending now.
func parseRange(r *http.Request, now time.Time, defaultDays int) (from, to time.Time, err error) {
	q := r.URL.Query()
	to = now
	if v := q.Get("to"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to %q: want YYYY-MM-DD", v)
		}
		to = d.Add(24*time.Hour - time.Nanosecond)
	}
	from = to.AddDate(0, 0, -defaultDays)
	if v := q.Get("from"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from %q: want YYYY-MM-DD", v)
		}
		from = d
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from %s is after to %s", from.Format(dateLayout), to.Format(dateLayout))
	}
	return from, to, nil
}
