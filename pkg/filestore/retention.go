package filestore

import "time"

// ExpiredFile identifies one file past its retention window.
type ExpiredFile struct {
	JobID    string
	Filename string
	Size     int64
	Age      time.Duration
}

// ExpireRetained removes every file whose age exceeds its retention
// window and returns what was (or would be) removed. With dryRun set
// nothing is deleted and no counters change.
func (s *Store) ExpireRetained(dryRun bool) []ExpiredFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var expired []ExpiredFile
	for jobID, files := range s.jobs {
		for name, fi := range files {
			retention := time.Duration(fi.RetentionDays) * 24 * time.Hour
			age := now.Sub(fi.CreatedAt)
			if age <= retention {
				continue
			}
			expired = append(expired, ExpiredFile{
				JobID:    jobID,
				Filename: name,
				Size:     fi.Size,
				Age:      age,
			})
		}
	}

	if dryRun {
		return expired
	}

	for _, ex := range expired {
		if err := s.deleteLocked(ex.JobID, ex.Filename); err != nil {
			s.logger.Warn().Str("job_id", ex.JobID).Str("filename", ex.Filename).
				Err(err).Msg("retention delete failed")
			continue
		}
		s.logger.Info().Str("job_id", ex.JobID).Str("filename", ex.Filename).
			Dur("age", ex.Age).Msg("expired retained file")
	}
	return expired
}
