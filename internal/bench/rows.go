package bench

import (
	"bytes"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// CountRows returns the number of lines of the file at path. A final line
// without a trailing newline counts. An unreadable file is logged and counts
// as zero rows.
func CountRows(path string) int {
	f, err := os.Open(path)
	if err != nil {
		log.Errorf("Error: Unable to open file %s", path)
		return 0
	}
	defer f.Close()

	buf := make([]byte, 1<<20)
	rows := 0
	var last byte = '\n'
	for {
		n, err := f.Read(buf)
		if n > 0 {
			rows += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Errorf("Error: reading %s: %v", path, err)
			return 0
		}
	}
	if last != '\n' {
		rows++
	}
	return rows
}
