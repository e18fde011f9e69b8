package trace

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/moffa90/go-ice/transport"
)

// Record is one observed link packet with its offset from the start
// of the recording.
type Record struct {
	At      time.Duration
	Dir     transport.Direction
	Tag     byte
	Payload []byte
}

func (r Record) String() string {
	return fmt.Sprintf("%d,%s,%02X,%s",
		r.At.Microseconds(), r.Dir, r.Tag, strings.ToUpper(hex.EncodeToString(r.Payload)))
}

// WriteRecords serializes records to w, one line each.
func WriteRecords(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := fmt.Fprintln(bw, r.String()); err != nil {
			return fmt.Errorf("trace: write record: %w", err)
		}
	}
	return bw.Flush()
}

// ReadRecords parses a serialized trace back into records. Blank lines
// and lines starting with '#' are skipped.
func ReadRecords(r io.Reader) ([]Record, error) {
	var records []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		rec, err := parseRecord(text, line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("trace: read records: %w", err)
	}
	return records, nil
}

func parseRecord(text string, line int) (Record, error) {
	fields := strings.Split(text, ",")
	if len(fields) != 4 {
		return Record{}, &ParseError{Line: line, Reason: fmt.Sprintf("expected 4 fields, got %d", len(fields))}
	}

	us, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || us < 0 {
		return Record{}, &ParseError{Line: line, Reason: "bad timestamp " + strconv.Quote(fields[0])}
	}

	var dir transport.Direction
	switch fields[1] {
	case "out":
		dir = transport.DirOut
	case "in":
		dir = transport.DirIn
	default:
		return Record{}, &ParseError{Line: line, Reason: "bad direction " + strconv.Quote(fields[1])}
	}

	tag, err := strconv.ParseUint(fields[2], 16, 8)
	if err != nil {
		return Record{}, &ParseError{Line: line, Reason: "bad tag " + strconv.Quote(fields[2])}
	}

	payload, err := hex.DecodeString(fields[3])
	if err != nil {
		return Record{}, &ParseError{Line: line, Reason: "bad payload hex"}
	}

	return Record{
		At:      time.Duration(us) * time.Microsecond,
		Dir:     dir,
		Tag:     byte(tag),
		Payload: payload,
	}, nil
}
