package schedule

import (
	"encoding/json"
	"fmt"
	"os"
)

// WriteSnapshot writes the filtered activity list to path as indented JSON
// for offline inspection. The loop only ever writes this file; nothing reads
// it back.
func WriteSnapshot(path string, activities []Activity) error {
	data, err := json.MarshalIndent(activities, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}
