package session

import (
	"encoding/json"
	"time"
)

// SerializableSession is the stored form of a Session.
type SerializableSession struct {
	ID        string            `json:"id"`
	Host      string            `json:"host"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Params    map[string]string `json:"params,omitempty"`

	// Version is the serialization format version.
	Version int `json:"version"`
}

// CurrentSerializationVersion is bumped on incompatible format changes.
const CurrentSerializationVersion = 1

// Serialize encodes ss, stamping the current version.
func Serialize(ss *SerializableSession) ([]byte, error) {
	ss.Version = CurrentSerializationVersion
	return json.Marshal(ss)
}

// Deserialize decodes data produced by Serialize.
func Deserialize(data []byte) (*SerializableSession, error) {
	var ss SerializableSession
	if err := json.Unmarshal(data, &ss); err != nil {
		return nil, err
	}
	return &ss, nil
}
