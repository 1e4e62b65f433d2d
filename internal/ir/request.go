package ir

import "fmt"

// RequestKind names a request variant on the wire and in the journal.
type RequestKind string

const (
	// KindAddEntity creates one new pet. Owner only.
	KindAddEntity RequestKind = "add_entity"
	// KindAdoptEntity claims one existing pet for the caller.
	KindAdoptEntity RequestKind = "adopt_entity"
)

// Request is the closed set of state-changing operations.
// Only AddEntity and AdoptEntity implement it.
type Request interface {
	Kind() RequestKind
	isRequest()
}

// AddEntity creates a pet with id = current entity count.
type AddEntity struct{}

// Kind implements Request.
func (AddEntity) Kind() RequestKind { return KindAddEntity }
func (AddEntity) isRequest()        {}

// AdoptEntity claims pet ID for the caller.
type AdoptEntity struct {
	ID EntityID
}

// Kind implements Request.
func (AdoptEntity) Kind() RequestKind { return KindAdoptEntity }
func (AdoptEntity) isRequest()        {}

// TargetOf returns the entity a request refers to, if any.
func TargetOf(req Request) (EntityID, bool) {
	switch r := req.(type) {
	case AdoptEntity:
		return r.ID, true
	case AddEntity:
		return 0, false
	default:
		return 0, false
	}
}

// RequestObject encodes a request for hashing and journaling.
func RequestObject(req Request) (IRObject, error) {
	switch r := req.(type) {
	case AddEntity:
		return IRObject{"kind": IRString(KindAddEntity)}, nil
	case AdoptEntity:
		return IRObject{
			"kind":      IRString(KindAdoptEntity),
			"entity_id": IRInt(int64(r.ID)),
		}, nil
	default:
		return nil, fmt.Errorf("unknown request type %T", req)
	}
}

// DecodeRequest rebuilds a request from its journaled kind and target.
func DecodeRequest(kind RequestKind, entityID int64) (Request, error) {
	switch kind {
	case KindAddEntity:
		return AddEntity{}, nil
	case KindAdoptEntity:
		id, err := EntityIDFromInt(entityID)
		if err != nil {
			return nil, err
		}
		return AdoptEntity{ID: id}, nil
	default:
		return nil, fmt.Errorf("unknown request kind %q", kind)
	}
}
