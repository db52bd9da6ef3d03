package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Cache payloads are stored as versioned binary records rather than a
// language-specific object encoding, so the file format stays portable:
//
//	[4-byte tag "EMC1"][uvarint body length][msgpack body]
//
// Appended records simply concatenate. Decoding a buffer reads exactly one
// record from its start and ignores trailing bytes, which is what lets the
// cache serve both whole-payload reads and offset-sliced reads.
var envelopeTag = []byte("EMC1")

var (
	errBadEnvelope   = errors.New("payload is not a cache envelope")
	errShortEnvelope = errors.New("cache envelope is truncated")
)

// marshalRecord wraps one value into a self-contained envelope record.
func marshalRecord(v interface{}) ([]byte, error) {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize cache record: %w", err)
	}
	record := make([]byte, 0, len(envelopeTag)+binary.MaxVarintLen64+len(body))
	record = append(record, envelopeTag...)
	record = binary.AppendUvarint(record, uint64(len(body)))
	record = append(record, body...)
	return record, nil
}

// unmarshalRecord decodes the record at the start of data into v.
func unmarshalRecord(data []byte, v interface{}) error {
	if len(data) < len(envelopeTag) || !bytes.Equal(data[:len(envelopeTag)], envelopeTag) {
		return errBadEnvelope
	}
	rest := data[len(envelopeTag):]
	bodyLen, n := binary.Uvarint(rest)
	if n <= 0 {
		return errShortEnvelope
	}
	rest = rest[n:]
	if uint64(len(rest)) < bodyLen {
		return errShortEnvelope
	}
	if err := msgpack.Unmarshal(rest[:bodyLen], v); err != nil {
		return fmt.Errorf("failed to deserialize cache record: %w", err)
	}
	return nil
}
