package taxonomy

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	nocerrors "github.com/Aman-CERP/nocmatch/internal/errors"
)

// maxLineBytes bounds a single JSONL record; duty narratives can be long.
// Longer lines are skipped and counted as malformed.
const maxLineBytes = 4 * 1024 * 1024

// LoadStats summarizes a load.
type LoadStats struct {
	Lines      int
	Loaded     int
	Malformed  []int
	Duplicates []string
	MissingID  int
}

// record is the on-disk shape. Several field names are accepted for the
// same concept because published NOC extracts disagree on naming.
type record struct {
	NOC                    flexString `json:"noc"`
	Code                   flexString `json:"code"`
	Title                  string     `json:"title"`
	TEER                   flexString `json:"teer"`
	SkillTier              flexString `json:"skill_tier"`
	RelatedTitles          []string   `json:"related_titles"`
	AliasTitles            []string   `json:"alias_titles"`
	Keywords               []string   `json:"keywords"`
	Duties                 flexText   `json:"duties"`
	DutiesShort            flexText   `json:"duties_short"`
	Requirements           flexText   `json:"requirements"`
	Employment             flexText   `json:"employment"`
	EmploymentRequirements flexText   `json:"employment_requirements"`
}

func (r record) entry() Entry {
	return Entry{
		Code:                   firstNonEmpty(string(r.NOC), string(r.Code)),
		Title:                  strings.TrimSpace(r.Title),
		SkillTier:              firstNonEmpty(string(r.TEER), string(r.SkillTier)),
		AliasTitles:            cleanList(append(append([]string{}, r.RelatedTitles...), r.AliasTitles...)),
		Keywords:               cleanList(r.Keywords),
		DutiesText:             string(r.Duties),
		DutiesShort:            string(r.DutiesShort),
		EmploymentRequirements: firstNonEmpty(string(r.Requirements), string(r.Employment), string(r.EmploymentRequirements)),
	}
}

// LoadFile reads a JSONL taxonomy from path. A missing, unreadable, or
// empty file is reported as DataUnavailable.
func LoadFile(path string) (*Store, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, nocerrors.DataUnavailable(
			fmt.Sprintf("cannot open taxonomy %s", path), err).WithDetail("path", path)
	}
	defer f.Close()

	store, stats, err := Read(f)
	if err != nil {
		var me *nocerrors.MatchError
		if errors.As(err, &me) {
			me.WithDetail("path", path)
		}
		return nil, stats, err
	}
	return store, stats, nil
}

// Read parses JSONL records from r. Blank lines are ignored; malformed or
// oversized lines and records without a code are skipped and counted; a
// repeated code keeps its first record.
func Read(r io.Reader) (*Store, LoadStats, error) {
	return read(r, maxLineBytes)
}

func read(r io.Reader, limit int) (*Store, LoadStats, error) {
	var stats LoadStats
	var entries []Entry
	seen := make(map[string]struct{})

	br := bufio.NewReaderSize(r, 64*1024)
	for {
		raw, tooLong, err := readLine(br, limit)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, stats, nocerrors.DataUnavailable("failed reading taxonomy", err)
		}
		if err != nil && len(raw) == 0 && !tooLong {
			break
		}
		stats.Lines++
		if tooLong {
			stats.Malformed = append(stats.Malformed, stats.Lines)
			continue
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			stats.Malformed = append(stats.Malformed, stats.Lines)
			continue
		}
		e := rec.entry()
		if e.Code == "" {
			stats.MissingID++
			continue
		}
		if _, dup := seen[e.Code]; dup {
			stats.Duplicates = append(stats.Duplicates, e.Code)
			continue
		}
		seen[e.Code] = struct{}{}
		entries = append(entries, e)
	}

	stats.Loaded = len(entries)
	if len(stats.Malformed) > 0 || len(stats.Duplicates) > 0 || stats.MissingID > 0 {
		slog.Warn("taxonomy records skipped",
			slog.Int("malformed", len(stats.Malformed)),
			slog.Any("malformed_lines", stats.Malformed),
			slog.Int("duplicates", len(stats.Duplicates)),
			slog.Int("missing_code", stats.MissingID))
	}
	if len(entries) == 0 {
		return nil, stats, nocerrors.DataUnavailable("taxonomy contains no usable entries", nil)
	}

	store, err := NewStore(entries)
	if err != nil {
		return nil, stats, nocerrors.DataUnavailable("taxonomy is inconsistent", err)
	}
	return store, stats, nil
}

// readLine returns the next line without its newline. A line longer than
// limit is drained without being buffered and reported as tooLong. io.EOF
// comes back with the final unterminated line, then alone.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, rerr := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case rerr == nil:
			return bytes.TrimSuffix(line, []byte("\n")), tooLong, nil
		case errors.Is(rerr, bufio.ErrBufferFull):
			continue
		default:
			return line, tooLong, rerr
		}
	}
}

// flexString accepts a JSON string or number ("21234" or 21234, "2" or 2).
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}

// flexText accepts a string or a list of strings, joining lists with "; ".
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '[' {
		var parts []string
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*f = flexText(strings.Join(cleanList(parts), "; "))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexText(strings.TrimSpace(s))
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
