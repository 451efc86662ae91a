package reconcile

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rotisserie/eris"
)

// Record is one free-text input of a batch.
type Record interface {
	InputText() string
}

// TextRecord holds its text in memory.
type TextRecord struct {
	ID   string
	Text string
}

func (r TextRecord) InputText() string { return r.Text }

// NewTextRecords wraps plain strings as records.
func NewTextRecords(texts ...string) []Record {
	out := make([]Record, len(texts))
	for i, t := range texts {
		out[i] = TextRecord{Text: t}
	}
	return out
}

// FileRecord is the content of a text file.
type FileRecord struct {
	Path     string
	MIMEType string
	text     string
}

func (r FileRecord) InputText() string { return r.text }

// LoadFileRecords reads each path as one record. Files that are not text are
// rejected.
func LoadFileRecords(paths ...string) ([]Record, error) {
	out := make([]Record, 0, len(paths))
	for _, p := range paths {
		data, mime, err := readTextFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, FileRecord{Path: p, MIMEType: mime, text: string(data)})
	}
	return out, nil
}

// LoadLineRecords reads a text file and returns one record per non-blank line.
func LoadLineRecords(path string) ([]Record, error) {
	data, _, err := readTextFile(path)
	if err != nil {
		return nil, err
	}
	var out []Record
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		out = append(out, TextRecord{ID: filepath.Base(path) + ":" + strconv.Itoa(line), Text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "scan %s", path)
	}
	return out, nil
}

func readTextFile(path string) ([]byte, string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, "", eris.Wrapf(err, "detect type of %s", path)
	}
	if !isText(mtype) {
		return nil, "", eris.Errorf("%s is %s, not text", path, mtype.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", eris.Wrapf(err, "read %s", path)
	}
	return data, mtype.String(), nil
}

func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
