package portal

import (
	"encoding/json"
	"strconv"
	"time"
)

// NowISO formats the current instant the way the stored documents carry
// timestamps (RFC 3339 with millisecond precision, UTC).
func NowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// TimestampID derives a caller-assigned document id from the current time,
// the id convention of the deployed data.
func TimestampID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// ToPatch flattens a record into the field map the store's partial update
// expects. Callers conventionally pass a full record, so the effect is a
// full replace.
func ToPatch(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var patch map[string]any
	if err := json.Unmarshal(raw, &patch); err != nil {
		return map[string]any{}
	}
	return patch
}
