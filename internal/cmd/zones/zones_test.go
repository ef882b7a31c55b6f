package zones

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clambin/tado-scheduler/internal/tadoclient"
)

type fakeZoneLister struct {
	zones []tadoclient.Zone
	err   error
}

func (f fakeZoneLister) Zones(_ context.Context) ([]tadoclient.Zone, error) {
	return f.zones, f.err
}

func TestShowZones(t *testing.T) {
	lister := fakeZoneLister{zones: []tadoclient.Zone{
		{ID: 1, Name: "Living Room"},
		{ID: 2, Name: "Bedroom"},
	}}

	var out bytes.Buffer
	require.NoError(t, showZones(context.Background(), lister, json.NewEncoder(&out)))

	var report []entry
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, []entry{
		{ID: 1, Name: "Living Room", Key: "living_room"},
		{ID: 2, Name: "Bedroom", Key: "bedroom"},
	}, report)
}

func TestShowZones_Error(t *testing.T) {
	lister := fakeZoneLister{err: assert.AnError}
	assert.Error(t, showZones(context.Background(), lister, json.NewEncoder(&bytes.Buffer{})))
}
