package fhir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Date accepts any of the FHIR date/dateTime/instant precisions.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var dateStr string
	if err := json.Unmarshal(data, &dateStr); err != nil {
		return fmt.Errorf("error parsing date: %v", err)
	}
	if dateStr == "" {
		return nil
	}

	parsedTime, err := parseDate(dateStr)
	if err != nil {
		return fmt.Errorf("error parsing date: %v", err)
	}

	d.Time = parsedTime
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(time.RFC3339))
}

func parseDate(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
		"2006-01",
		"2006",
	}

	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}
