package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablewatch/ecosystem-cli/internal/ingest"
	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/records"
)

func TestLoadOrEmpty(t *testing.T) {
	recs, err := loadOrEmpty(filepath.Join(t.TempDir(), "missing.csv"))
	require.NoError(t, err)
	assert.Nil(t, recs)

	path := filepath.Join(t.TempDir(), "records.csv")
	require.NoError(t, records.Write(path, []*model.Record{{Name: "Thala"}}))

	recs, err = loadOrEmpty(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Thala", recs[0].Name)
}

func TestFormatMappings(t *testing.T) {
	out := formatMappings([]ingest.Mapping{
		{Incoming: "Project", MappedTo: "Project Name", Confidence: "alias", Kind: ingest.MappingSuggested},
		{Incoming: "Random Junk", Kind: ingest.MappingExtra},
	})

	assert.Contains(t, out, "Project Name")
	assert.Contains(t, out, "alias")
	assert.Contains(t, out, "(dropped)")
}
