// Package status maps an extracted timeline onto the fixed set of shipment
// milestones reported to the order store.
package status

import (
	"encoding/json"

	"golang.org/x/text/unicode/norm"

	"cttsync/internal/layout"
)

// Key names one canonical milestone.
type Key string

const (
	Accepted             Key = "accepted"
	AcceptedInCTT        Key = "acceptedInCtt"
	InTransit            Key = "in_transit"
	WaitingToBeDelivered Key = "waitingToBeDelivered"
	Delivered            Key = "delivered"
)

// Keys lists every canonical milestone in reporting order.
var Keys = []Key{Accepted, AcceptedInCTT, InTransit, WaitingToBeDelivered, Delivered}

// labels holds the accepted timeline labels per milestone. "Em trânsito" also
// reaches us through two broken decodings of its UTF-8 bytes.
var labels = map[Key][]string{
	Accepted:             {"Aceite"},
	AcceptedInCTT:        {"Aguarda entrada nos CTT"},
	InTransit:            {"Em trânsito", "Em tr√¢nsito", "Em trÃ¢nsito"},
	WaitingToBeDelivered: {"Em espera"},
	Delivered:            {"Entregue"},
}

// Entry is the state of one milestone. Date and Time are set only when the
// matched event carried them.
type Entry struct {
	Reached bool   `json:"status"`
	Date    string `json:"date,omitempty"`
	Time    string `json:"time,omitempty"`
}

// Record holds exactly one Entry per canonical key.
type Record map[Key]Entry

// Map builds the status record for a timeline. For each key the first event
// whose label is one of the key's accepted variants wins.
func Map(events []layout.Event) Record {
	rec := make(Record, len(Keys))
	for _, key := range Keys {
		rec[key] = Entry{}
		if ev, ok := find(events, key); ok {
			rec[key] = Entry{Reached: true, Date: ev.Date, Time: ev.Time}
		}
	}
	return rec
}

// Matches reports whether label is an accepted variant for key.
func Matches(key Key, label string) bool {
	got := norm.NFC.String(label)
	for _, v := range labels[key] {
		if norm.NFC.String(v) == got {
			return true
		}
	}
	return false
}

func find(events []layout.Event, key Key) (layout.Event, bool) {
	for _, ev := range events {
		if Matches(key, ev.Label) {
			return ev, true
		}
	}
	return layout.Event{}, false
}

// Reached counts the milestones marked reached.
func (r Record) Reached() int {
	n := 0
	for _, e := range r {
		if e.Reached {
			n++
		}
	}
	return n
}

// Latest returns the furthest milestone reached, by reporting order.
func (r Record) Latest() (Key, bool) {
	for i := len(Keys) - 1; i >= 0; i-- {
		if r[Keys[i]].Reached {
			return Keys[i], true
		}
	}
	return "", false
}

// MarshalJSON writes the keys in reporting order so payloads are stable.
func (r Record) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, key := range Keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, err := json.Marshal(string(key))
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r[key])
		if err != nil {
			return nil, err
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}
