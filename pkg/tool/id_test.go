package tool

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUIDV7(t *testing.T) {
	id, err := uuid.Parse(GenerateUUIDV7())
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), id.Version())
}

func TestParseFlag(t *testing.T) {
	for in, want := range map[string]bool{"true": true, "1": true, " TRUE ": true, "false": false, "": false, "yes": false} {
		require.Equal(t, want, ParseFlag(in), in)
	}
}
