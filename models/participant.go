package models

import (
	"github.com/aukilabs/overlap/messages"
)

// A world participant.
type Participant struct {
	ID        uint32
	Responder messages.ResponseSender

	entityIDs map[uint32]struct{}
}

func (p *Participant) AddEntity(e *Entity) {
	if p.entityIDs == nil {
		p.entityIDs = make(map[uint32]struct{})
	}
	p.entityIDs[e.ID] = struct{}{}
}

func (p *Participant) RemoveEntity(e *Entity) {
	delete(p.entityIDs, e.ID)
}

func (p *Participant) EntityIDs() map[uint32]struct{} {
	return p.entityIDs
}

// Owns reports whether the participant created the given entity.
func (p *Participant) Owns(e *Entity) bool {
	_, ok := p.entityIDs[e.ID]
	return ok && e.ParticipantID == p.ID
}
