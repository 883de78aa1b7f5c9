package coprocessor

import (
	"encoding/binary"
)

// Record keys follow the table-row layout: a 't' tag, the big-endian table
// id, an "_r" tag and the sign-flipped big-endian handle, so that handles
// order correctly under lexicographic key comparison.
const (
	recordKeyLen  = 1 + 8 + 2 + 8
	handleSignBit = uint64(1) << 63
)

// EncodeRecordKey builds the raw user key of a table row.
func EncodeRecordKey(tableID, handle int64) []byte {
	key := make([]byte, 0, recordKeyLen)
	key = append(key, 't')
	key = binary.BigEndian.AppendUint64(key, uint64(tableID))
	key = append(key, '_', 'r')
	return binary.BigEndian.AppendUint64(key, uint64(handle)^handleSignBit)
}

// DecodeRecordHandle extracts the handle from a record-shaped key. Keys of
// any other shape return ok=false; scans over non-record data still work,
// they just carry a zero handle.
func DecodeRecordHandle(key []byte) (handle int64, ok bool) {
	if len(key) != recordKeyLen || key[0] != 't' || key[9] != '_' || key[10] != 'r' {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(key[11:]) ^ handleSignBit), true
}

// EncodeRow serializes (column id, value) pairs into a row value buffer.
// The ids and values slices run in parallel.
func EncodeRow(colIDs []int64, values []Datum) []byte {
	var buf []byte
	for i, id := range colIDs {
		buf = EncodeDatum(buf, IntDatum(id))
		buf = EncodeDatum(buf, values[i])
	}
	return buf
}

// DecodeRowValues splits a row value buffer into per-column encoded datum
// bytes keyed by column id. Values stay encoded; column inflation appends
// them to chunks verbatim.
func DecodeRowValues(value []byte) (map[int64][]byte, error) {
	cols := make(map[int64][]byte)
	rest := value
	for len(rest) > 0 {
		idDatum, after, err := DecodeDatum(rest)
		if err != nil {
			return nil, err
		}
		if idDatum.Kind != KindInt64 {
			return nil, evalErrf("row value column id has kind %d", idDatum.Kind)
		}
		n, err := EncodedDatumLen(after)
		if err != nil {
			return nil, err
		}
		cols[idDatum.I] = after[:n]
		rest = after[n:]
	}
	return cols, nil
}
