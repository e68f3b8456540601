package pebblestore

import (
	"fmt"
	"strings"
	"time"
)

// key layout, all parts separated by 0x00:
//
//	a <identity>                     -> account JSON
//	h <identity> <asset>             -> quantity string
//	x <identity> <unix nanos> <id>   -> transfer JSON, per-participant index
const sep = "\x00"

func accountKey(identity string) []byte {
	return []byte("a" + sep + identity)
}

func holdingKey(identity, asset string) []byte {
	return []byte("h" + sep + identity + sep + asset)
}

func holdingPrefix(identity string) []byte {
	return []byte("h" + sep + identity + sep)
}

func participantKey(identity string, ts time.Time, id string) []byte {
	return []byte("x" + sep + identity + sep + nanos(ts) + sep + id)
}

func participantPrefix(identity string) []byte {
	return []byte("x" + sep + identity + sep)
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func assetFromHoldingKey(key []byte) string {
	parts := strings.SplitN(string(key), sep, 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}

func nanos(ts time.Time) string {
	return fmt.Sprintf("%020d", ts.UnixNano())
}
