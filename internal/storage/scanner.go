package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	molyerrors "github.com/valter-silva-au/moly-recorder/internal/errors"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// ScanResult is the classification of every SessionInfo file under a logs
// root.
type ScanResult struct {
	// Records holds every session found, most recently started first.
	// Unreadable sessions sort last.
	Records []models.SessionRecord
	// Incomplete holds the recovery candidates, most recently started first.
	Incomplete []models.IncompleteSession
	// Unreadable holds sessions whose SessionInfo could not be parsed.
	Unreadable []models.SessionRecord
}

// Latest returns the incomplete session recovery should consider, if any.
func (r *ScanResult) Latest() (models.IncompleteSession, bool) {
	if r == nil || len(r.Incomplete) == 0 {
		return models.IncompleteSession{}, false
	}
	return r.Incomplete[0], true
}

// Counts returns the number of sessions per status.
func (r *ScanResult) Counts() map[models.SessionStatus]int {
	counts := map[models.SessionStatus]int{}
	if r == nil {
		return counts
	}
	for _, rec := range r.Records {
		counts[rec.Status]++
	}
	return counts
}

// Scan walks logsRoot/{participant}/session_info_*.json and classifies each
// session as COMPLETE, INCOMPLETE or UNREADABLE. A missing root yields an
// empty result. Unreadable participant directories and SessionInfo files are
// recorded and skipped; only a root that exists but cannot be listed is an
// error.
func Scan(logsRoot string) (*ScanResult, error) {
	result := &ScanResult{}

	entries, err := os.ReadDir(logsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, molyerrors.IO("scan logs root", logsRoot, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(logsRoot, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			result.Unreadable = append(result.Unreadable, models.SessionRecord{
				Status: models.SessionUnreadable,
				Paths:  models.SessionPaths{Dir: dir},
				Error:  molyerrors.IO("list participant directory", dir, err).Error(),
			})
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			if _, ok := SessionStamp(f.Name()); !ok {
				continue
			}
			result.add(ClassifySession(filepath.Join(dir, f.Name())))
		}
	}

	result.sort()
	return result, nil
}

// ClassifySession reads one SessionInfo file and classifies it.
func ClassifySession(sessionInfoPath string) models.SessionRecord {
	info, err := ReadSessionInfo(sessionInfoPath)
	if err != nil {
		return models.SessionRecord{
			Status: models.SessionUnreadable,
			Paths:  PathsFromSessionInfo(sessionInfoPath, nil),
			Error:  err.Error(),
		}
	}
	status := models.SessionIncomplete
	if info.Complete() {
		status = models.SessionComplete
	}
	return models.SessionRecord{
		Status: status,
		Paths:  PathsFromSessionInfo(sessionInfoPath, info),
		Info:   info,
	}
}

func (r *ScanResult) add(rec models.SessionRecord) {
	switch rec.Status {
	case models.SessionUnreadable:
		r.Unreadable = append(r.Unreadable, rec)
	case models.SessionIncomplete:
		r.Incomplete = append(r.Incomplete, models.IncompleteSession{Info: *rec.Info, Paths: rec.Paths})
		r.Records = append(r.Records, rec)
	default:
		r.Records = append(r.Records, rec)
	}
}

// sort orders sessions by session_start_time.unix_timestamp, newest first.
// Equal start times fall back to the SessionInfo path, descending, so the
// order never depends on directory listing order or file mtimes.
func (r *ScanResult) sort() {
	sort.SliceStable(r.Incomplete, func(i, j int) bool {
		a, b := r.Incomplete[i], r.Incomplete[j]
		if a.StartUnix() != b.StartUnix() {
			return a.StartUnix() > b.StartUnix()
		}
		return a.Paths.SessionInfoPath > b.Paths.SessionInfoPath
	})
	sort.SliceStable(r.Records, func(i, j int) bool {
		a, b := r.Records[i], r.Records[j]
		as, bs := a.Info.SessionStartTime.UnixTimestamp, b.Info.SessionStartTime.UnixTimestamp
		if as != bs {
			return as > bs
		}
		return a.Paths.SessionInfoPath > b.Paths.SessionInfoPath
	})
	sort.SliceStable(r.Unreadable, func(i, j int) bool {
		return r.Unreadable[i].Paths.SessionInfoPath < r.Unreadable[j].Paths.SessionInfoPath
	})
	r.Records = append(r.Records, r.Unreadable...)
}
