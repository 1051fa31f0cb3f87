// Package jobsource reads the ordered job list from a plain text file, one
// target URL per line. Blank lines and #-comments are skipped; job indices
// are assigned by position so resumes line up with the original file.
package jobsource

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"sptrace/domain/jobs"
	"sptrace/logging"
)

// FileSource reads jobs from a text file.
type FileSource struct {
	path   string
	logger *logging.Logger
}

// New creates a job source over the given file path.
func New(path string) *FileSource {
	return &FileSource{
		path:   path,
		logger: logging.Default().WithComponent("job_source"),
	}
}

// Jobs reads and validates the job list. Indices count every line that
// yields a job, starting at zero. A line that is not an absolute URL fails
// the whole load; a half-read job list is not worth scanning.
func (s *FileSource) Jobs(ctx context.Context) ([]*jobs.Job, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open job list: %w", err)
	}
	defer f.Close()

	var list []*jobs.Job
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		u, err := url.Parse(text)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("job list line %d: %q is not an absolute url", line, text)
		}

		list = append(list, &jobs.Job{Index: len(list), URL: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read job list: %w", err)
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("job list %s contains no jobs", s.path)
	}

	s.logger.Info("Loaded job list", "path", s.path, "jobs", len(list))
	return list, nil
}
