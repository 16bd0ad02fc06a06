package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"

	molyerrors "github.com/valter-silva-au/moly-recorder/internal/errors"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// LineStats counts the records read from one JSONL log.
type LineStats struct {
	Parsed  int `json:"parsed"`
	Skipped int `json:"skipped"`
}

// ReadActions streams the actions log at path in file order. Lines that are
// not a complete action record are counted as skipped; blank lines are
// ignored. A missing file reads as empty.
func ReadActions(path string, fn func(models.ActionEvent)) (LineStats, error) {
	return readJSONL(path, func(line []byte) bool {
		var ev models.ActionEvent
		if err := json.Unmarshal(line, &ev); err != nil || ev.ActionType == "" {
			return false
		}
		fn(ev)
		return true
	})
}

// ReadResponses streams the responses log at path in file order, with the
// same tolerance as ReadActions. A record without a prompt_index is skipped.
func ReadResponses(path string, fn func(models.ResponseEvent)) (LineStats, error) {
	return readJSONL(path, func(line []byte) bool {
		var idx struct {
			PromptIndex *int `json:"prompt_index"`
		}
		if err := json.Unmarshal(line, &idx); err != nil || idx.PromptIndex == nil {
			return false
		}
		var ev models.ResponseEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return false
		}
		fn(ev)
		return true
	})
}

func readJSONL(path string, decode func([]byte) bool) (LineStats, error) {
	var stats LineStats

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, molyerrors.IO("open log", path, err)
	}
	defer func() { _ = f.Close() }()

	// bufio.Reader rather than Scanner: a partial text snapshot can exceed
	// the Scanner token limit.
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if decode(trimmed) {
				stats.Parsed++
			} else {
				stats.Skipped++
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			return stats, molyerrors.IO("read log", path, err)
		}
	}
}
