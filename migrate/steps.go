package migrate

import "time"

// CurrentVersion is the schema version Default migrates to.
const CurrentVersion = 2

// Default is the registry the blog store loads through.
var Default = New([]Step{
	{Version: 1, Name: "status-default", Apply: defaultStatus},
	{Version: 2, Name: "timestamps", Apply: fillTimestamps},
})

// defaultStatus gives every record without a status the draft status.
func defaultStatus(records []Record, _ time.Time) []Record {
	for _, r := range records {
		if absent(r, "status") {
			r["status"] = "draft"
		}
	}
	return records
}

// fillTimestamps backfills createdAt from publishDate (or now) and updatedAt
// from now, keeping updatedAt no earlier than createdAt.
func fillTimestamps(records []Record, now time.Time) []Record {
	now = now.UTC()
	for _, r := range records {
		if absent(r, "createdAt") {
			created := now
			if t, ok := parseDate(r["publishDate"]); ok {
				created = t
			}
			r["createdAt"] = created.Format(time.RFC3339Nano)
		}
		if absent(r, "updatedAt") {
			updated := now
			if t, ok := parseDate(r["createdAt"]); ok && t.After(updated) {
				updated = t
			}
			r["updatedAt"] = updated.Format(time.RFC3339Nano)
		}
	}
	return records
}

func parseDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	return ParseTime(s)
}

// ParseTime accepts an RFC 3339 timestamp or a bare YYYY-MM-DD date, the two
// forms stored collections carry, and returns it in UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
