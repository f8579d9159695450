package scanner

// setTotal records the number of candidates for the running pass.
func (s *Scanner) setTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = n
	s.status.RemainFiles = n
}

// beginFile advances progress to the next candidate. The remaining-time
// estimate is recomputed for the first file and then at most once per
// ProgressRefresh.
func (s *Scanner) beginFile(path string) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.ScanningFiles++
	s.status.RemainFiles = s.total - s.status.ScanningFiles
	s.status.CurrentFile = path
	if s.total > 0 {
		s.status.Progress = float64(s.status.ScanningFiles) / float64(s.total)
	}

	if s.status.Progress <= 0 {
		return
	}
	if s.status.ScanningFiles > 1 && now.Sub(s.lastRefresh) < s.opts.ProgressRefresh {
		return
	}
	elapsed := now.Sub(s.started).Seconds()
	remain := elapsed * (1/s.status.Progress - 1)
	s.status.RemainTime = &remain
	s.lastRefresh = now
}
