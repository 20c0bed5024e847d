package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"herald/internal/model"
)

// AppendLog appends one "[timestamp] (bucket) text" line to the publish log.
func AppendLog(path, layout string, ts time.Time, bucket model.Bucket, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "[%s] (%s) %s\n", ts.Format(layout), bucket, text); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
