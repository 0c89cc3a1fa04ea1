package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParticipantAddEntity(t *testing.T) {
	p := Participant{
		ID: 1,
	}

	e := &Entity{
		ID:            1,
		ParticipantID: 1,
	}

	p.AddEntity(e)
	require.Len(t, p.EntityIDs(), 1)
}

func TestParticipantRemoveEntity(t *testing.T) {
	p := Participant{
		ID: 1,
	}

	e := &Entity{
		ID:            1,
		ParticipantID: 1,
	}

	p.AddEntity(e)
	require.Len(t, p.EntityIDs(), 1)

	p.RemoveEntity(e)
	require.Empty(t, p.EntityIDs())
}

func TestParticipantOwns(t *testing.T) {
	p := Participant{ID: 1}
	mine := &Entity{ID: 1, ParticipantID: 1}
	other := &Entity{ID: 2, ParticipantID: 2}

	p.AddEntity(mine)
	require.True(t, p.Owns(mine))
	require.False(t, p.Owns(other))
}
