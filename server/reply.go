package server

import (
	"time"

	"github.com/cubeflix/csh/internal/codec"
	"github.com/cubeflix/csh/internal/protoerr"
)

// errorReply builds the {code, error} mapping §7 requires for every
// non-zero response.
func errorReply(code protoerr.Code, msg string) codec.Mapping {
	return codec.Mapping{
		"code":  int64(code),
		"error": msg,
	}
}

// errorReplyFor converts an *protoerr.Error (as returned by
// protoerr.FromFilesystem or constructed directly) into a reply
// mapping.
func errorReplyFor(err *protoerr.Error) codec.Mapping {
	return errorReply(err.Code, err.Msg)
}

func okReply() codec.Mapping {
	return codec.Mapping{"code": int64(protoerr.OK)}
}

func getString(m codec.Mapping, key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func getInt(m codec.Mapping, key string) (int64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

func getIntDefault(m codec.Mapping, key string, def int64) int64 {
	n, ok := getInt(m, key)
	if !ok {
		return def
	}
	return n
}

func getBytes(m codec.Mapping, key string) ([]byte, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func getBool(m codec.Mapping, key string) (bool, bool) {
	v, ok := m.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func getMapping(m codec.Mapping, key string) (codec.Mapping, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	sub, ok := v.(codec.Mapping)
	return sub, ok
}

// utcTimestamp renders the current instant as the UTC 9-tuple §4.8 and
// §4.9 specify: (year, month, day, hour, minute, second, weekday,
// yday, isdst). weekday is 0=Monday..6=Sunday; yday is 1-based;
// isdst is always 0 since the server always reports UTC. It returns a
// codec.Tuple, not a codec.List, so it carries tag 5 on the wire
// rather than tag 4, matching the reference implementation's native
// tuple(...) construction.
func utcTimestamp() codec.Tuple {
	t := time.Now().UTC()
	wday := (int(t.Weekday()) + 6) % 7
	return codec.Tuple{
		int64(t.Year()),
		int64(t.Month()),
		int64(t.Day()),
		int64(t.Hour()),
		int64(t.Minute()),
		int64(t.Second()),
		int64(wday),
		int64(t.YearDay()),
		int64(0),
	}
}
