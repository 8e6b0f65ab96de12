package domain

import "time"

// Window is a half-open time interval [Start, End) expressed in UTC.
type Window struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the wall-clock length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}
