// Package session turns captured TLS sessions into feature rows: it decodes
// capture files, infers the direction of every record and exports the
// feature and label map CSVs consumed by the training pipeline.
package session

import (
	"errors"
	"time"

	"github.com/FlavioCFOliveira/TrafficNet/internal/features"
)

// ErrUndetermined is returned when a record's direction cannot be inferred.
// Such records are excluded from the session.
var ErrUndetermined = errors.New("direction undetermined")

// Handshake message types that fix the client and server addresses.
const (
	NoHandshake = -1
	ClientHello = 1
	ServerHello = 2
)

// Tuple is one dissected protocol record.
type Tuple struct {
	Timestamp     time.Time
	Src           string
	Dst           string
	FrameLength   int
	HandshakeType int
}

// Resolver infers record directions within one session. A ClientHello
// fixes the client as its source, a ServerHello fixes the client as its
// destination; later records are matched against those addresses.
type Resolver struct {
	client string
	server string
}

// Resolve returns the direction of t and updates the known addresses.
func (r *Resolver) Resolve(t Tuple) (int, error) {
	switch t.HandshakeType {
	case ClientHello:
		r.client, r.server = t.Src, t.Dst
		return features.ClientToServer, nil
	case ServerHello:
		r.client, r.server = t.Dst, t.Src
		return features.ServerToClient, nil
	}

	if r.client == "" && r.server == "" {
		return 0, ErrUndetermined
	}

	byClient := features.ServerToClient
	if t.Src == r.client {
		byClient = features.ClientToServer
	}
	byServer := features.ClientToServer
	if t.Src == r.server {
		byServer = features.ServerToClient
	}
	if byClient != byServer {
		return 0, ErrUndetermined
	}
	return byClient, nil
}

// Reset forgets the known addresses.
func (r *Resolver) Reset() {
	r.client, r.server = "", ""
}

// Records resolves the tuples of one session in order. Tuples without a
// positive frame length or with an undetermined direction are dropped and
// counted.
func Records(tuples []Tuple) ([]features.Record, int) {
	var (
		r       Resolver
		records []features.Record
		dropped int
	)
	for _, t := range tuples {
		dir, err := r.Resolve(t)
		if err != nil || t.FrameLength <= 0 {
			dropped++
			continue
		}
		records = append(records, features.Record{Size: t.FrameLength, Direction: dir})
	}
	return records, dropped
}
