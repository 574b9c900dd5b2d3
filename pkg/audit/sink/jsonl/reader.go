package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"auditlog/pkg/audit"
)

const maxLineBytes = 4 * 1024 * 1024

// Scan decodes every audit event in r and passes it to fn in file order.
// Blank lines and records that are not audit events are skipped and counted.
// An error from fn stops the scan and is returned.
func Scan(r io.Reader, fn func(audit.Event) error) (skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var event audit.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			skipped++
			continue
		}
		if err := fn(event); err != nil {
			return skipped, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return skipped, fmt.Errorf("read line %d: %w", line+1, err)
	}
	return skipped, nil
}
