package catalog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/clanhall/taskwheel/internal/domain"
)

// ParseTaskFile reads the bulk task format: one "description;instruction"
// pair per line. Lines that do not split into exactly two fields are skipped.
// The 1-based line number becomes the task id and every task gets weight 1.
func ParseTaskFile(r io.Reader) ([]domain.Task, error) {
	var tasks []domain.Task
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Split(strings.TrimSpace(scanner.Text()), ";")
		if len(fields) != 2 {
			slog.Warn("skipping malformed task line", "line", line)
			continue
		}
		tasks = append(tasks, domain.Task{
			ID:          line,
			Description: fields[0],
			Instruction: fields[1],
			Weight:      1,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	return tasks, nil
}

// LoadFile upserts every task parsed from the file and returns how many were
// stored. A task whose description fails template validation aborts the load.
func (s *Service) LoadFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open task file: %w", err)
	}
	defer f.Close()

	tasks, err := ParseTaskFile(f)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		if err := s.Upsert(ctx, t); err != nil {
			return 0, fmt.Errorf("load task %d: %w", t.ID, err)
		}
	}
	return len(tasks), nil
}

// Reload drops the whole catalog and loads the file from scratch.
func (s *Service) Reload(ctx context.Context, path string) (int, error) {
	if err := s.DeleteAll(ctx); err != nil {
		return 0, err
	}
	return s.LoadFile(ctx, path)
}
