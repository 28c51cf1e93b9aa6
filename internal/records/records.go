// Package records reads and writes the JSONL task files: abductive
// reasoning records on the way in, records annotated with generations on
// the way out, and metric rows for the evaluation results sink.
package records

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
)

// Record is one abductive reasoning instance: two observations, two
// candidate hypotheses, the label naming the correct one, and any
// generated hypotheses keyed by model.
type Record struct {
	StoryID     string              `json:"story_id,omitempty"`
	Obs1        string              `json:"obs1"`
	Obs2        string              `json:"obs2"`
	Hyp1        string              `json:"hyp1,omitempty"`
	Hyp2        string              `json:"hyp2,omitempty"`
	Label       string              `json:"label,omitempty"`
	Generations map[string][]string `json:"generations,omitempty"`
}

// Reference returns the gold hypothesis selected by the label, or "" when
// the record carries no label.
func (r *Record) Reference() string {
	switch r.Label {
	case "1":
		return r.Hyp1
	case "2":
		return r.Hyp2
	default:
		return ""
	}
}

// AddGeneration appends a generated hypothesis under the model key.
func (r *Record) AddGeneration(modelKey, text string) {
	if r.Generations == nil {
		r.Generations = make(map[string][]string)
	}
	r.Generations[modelKey] = append(r.Generations[modelKey], text)
}

// ReadJSONL loads every record from a JSONL file. Blank lines are skipped;
// a malformed line fails the whole read with its line number.
func ReadJSONL(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rec := &Record{}
		if err := json.Unmarshal([]byte(line), rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteJSONL writes one JSON object per line, replacing any existing file.
func WriteJSONL(path string, recs []*Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReadLines loads a plain prompt-per-line file, skipping blank lines.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

// WriteLines writes one string per line.
func WriteLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return w.Flush()
}

// AppendJSONL appends a single JSON row to a results sink, creating the
// file when missing. The evaluation aggregator uses this so partial
// results survive individual scorer failures.
func AppendJSONL(path string, row interface{}) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	return enc.Encode(row)
}
