package convert

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"yashubustudio/labelmerge/merge"
)

const maxLineSize = 16 * 1024 * 1024

// TSVToCSV rewrites a tab-separated file as CSV and returns the row count.
func TSVToCSV(src, dst string) (int, error) {
	t, err := merge.LoadTable(src, merge.LoadOptions{})
	if err != nil {
		return 0, err
	}
	if err := merge.WriteTable(dst, t, merge.WriteOptions{}); err != nil {
		return 0, err
	}
	return len(t.Rows), nil
}

// ReadTXT reads one text per non-empty line. Every row gets label.
func ReadTXT(r io.Reader, label string) (*merge.RawTable, error) {
	t := &merge.RawTable{Columns: []string{"text", "label"}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		t.Rows = append(t.Rows, []string{line, label})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	return t, nil
}

// TXTToCSV converts a plain text file to a text/label CSV.
func TXTToCSV(src, dst, label string) (int, error) {
	return convertFile(src, dst, func(r io.Reader) (*merge.RawTable, error) {
		return ReadTXT(r, label)
	})
}

// ReadCONLLU joins the FORM column of every CoNLL-U sentence into one text.
// Comment lines are skipped and a blank line ends a sentence. The label
// column is left empty.
func ReadCONLLU(r io.Reader) (*merge.RawTable, error) {
	t := &merge.RawTable{Columns: []string{"text", "label"}}
	var words []string
	flush := func() {
		if len(words) > 0 {
			t.Rows = append(t.Rows, []string{strings.Join(words, " "), ""})
			words = nil
		}
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "#"):
		default:
			if parts := strings.Split(line, "\t"); len(parts) >= 2 {
				words = append(words, parts[1])
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read conllu: %w", err)
	}
	flush()
	return t, nil
}

// CONLLUToCSV converts a CoNLL-U file to a text/label CSV.
func CONLLUToCSV(src, dst string) (int, error) {
	return convertFile(src, dst, ReadCONLLU)
}

func convertFile(src, dst string, read func(io.Reader) (*merge.RawTable, error)) (int, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	t, err := read(f)
	if err != nil {
		return 0, err
	}
	if err := merge.WriteTable(dst, t, merge.WriteOptions{}); err != nil {
		return 0, err
	}
	return len(t.Rows), nil
}
