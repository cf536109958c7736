package status

import (
	"encoding/json"
	"testing"

	"cttsync/internal/layout"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_AcceptedAndDelivered(t *testing.T) {
	got := Map([]layout.Event{
		{Label: "Aceite", Date: "3 Jan"},
		{Label: "Entregue"},
	})
	want := Record{
		Accepted:             {Reached: true, Date: "3 Jan"},
		AcceptedInCTT:        {},
		InTransit:            {},
		WaitingToBeDelivered: {},
		Delivered:            {Reached: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Map() mismatch (-want +got):\n%s", diff)
	}
}

func TestMap_AlwaysHasEveryKey(t *testing.T) {
	inputs := [][]layout.Event{
		nil,
		{},
		{{Label: "unknown"}},
		{{Label: "Aceite"}, {Label: "Aceite", Date: "9 Jan"}},
	}
	for _, events := range inputs {
		rec := Map(events)
		require.Len(t, rec, len(Keys))
		for _, k := range Keys {
			_, ok := rec[k]
			assert.True(t, ok, "missing key %s", k)
		}
	}
}

func TestMap_FirstMatchWins(t *testing.T) {
	rec := Map([]layout.Event{
		{Label: "Em espera", Date: "1 Mar", Time: "08:00"},
		{Label: "Em espera", Date: "2 Mar", Time: "09:00"},
	})
	assert.Equal(t, Entry{Reached: true, Date: "1 Mar", Time: "08:00"}, rec[WaitingToBeDelivered])
}

func TestMap_InTransitVariants(t *testing.T) {
	for _, label := range []string{
		"Em trânsito",
		"Em tr√¢nsito",
		"Em trÃ¢nsito",
		"Em trânsito", // decomposed â
	} {
		rec := Map([]layout.Event{{Label: label, Time: "10:00"}})
		assert.Equal(t, Entry{Reached: true, Time: "10:00"}, rec[InTransit], "label %q", label)
	}

	rec := Map([]layout.Event{{Label: "Em transito"}})
	assert.False(t, rec[InTransit].Reached)
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches(AcceptedInCTT, "Aguarda entrada nos CTT"))
	assert.False(t, Matches(AcceptedInCTT, "aguarda entrada nos ctt"))
	assert.False(t, Matches(Key("bogus"), "Aceite"))
}

func TestRecord_MarshalJSON(t *testing.T) {
	rec := Map([]layout.Event{{Label: "Aceite", Date: "3 Jan", Time: "10:30"}})
	data, err := json.Marshal(map[string]any{"changes": map[string]any{"status": rec}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"changes":{"status":{
		"accepted":{"status":true,"date":"3 Jan","time":"10:30"},
		"acceptedInCtt":{"status":false},
		"in_transit":{"status":false},
		"waitingToBeDelivered":{"status":false},
		"delivered":{"status":false}
	}}}`, string(data))

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	var back Record
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, rec, back)
	assert.Equal(t, 1, back.Reached())
}

func TestRecordLatest(t *testing.T) {
	rec := Map(nil)
	_, ok := rec.Latest()
	assert.False(t, ok)

	rec[Accepted] = Entry{Reached: true}
	rec[InTransit] = Entry{Reached: true}
	key, ok := rec.Latest()
	assert.True(t, ok)
	assert.Equal(t, InTransit, key)

	rec[Delivered] = Entry{Reached: true}
	key, _ = rec.Latest()
	assert.Equal(t, Delivered, key)
}
