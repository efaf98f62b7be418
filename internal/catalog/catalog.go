// Package catalog manages the set of task definitions and random sampling
// over the standard (weight > 0) subset.
package catalog

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/clanhall/taskwheel/internal/domain"
	"github.com/clanhall/taskwheel/internal/repository"
	"github.com/clanhall/taskwheel/internal/template"
)

type Service struct {
	store repository.Store
}

func New(store repository.Store) *Service {
	return &Service{store: store}
}

func (s *Service) All(ctx context.Context) ([]domain.Task, error) {
	return s.store.Tasks(ctx)
}

func (s *Service) Get(ctx context.Context, id int) (*domain.Task, error) {
	task, err := s.store.TaskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

// NextID returns the smallest id above every existing task id.
func (s *Service) NextID(ctx context.Context) (int, error) {
	max, err := s.store.MaxTaskID(ctx)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// Upsert validates and stores a task, replacing any task with the same id.
// The description must parse as a template; a broken placeholder is rejected
// here so it can never surface during rotation.
func (s *Service) Upsert(ctx context.Context, task domain.Task) error {
	if task.ID <= 0 {
		return fmt.Errorf("task id must be positive, got %d", task.ID)
	}
	if task.Weight < 0 {
		return fmt.Errorf("task weight must not be negative, got %d", task.Weight)
	}
	if _, err := template.Parse(task.Description); err != nil {
		return err
	}
	return s.store.UpsertTask(ctx, task)
}

func (s *Service) DeleteAll(ctx context.Context) error {
	return s.store.DeleteAllTasks(ctx)
}

// StandardTasks returns the tasks eligible for rotation and voting. Weight is
// an eligibility gate only; it does not skew the draw.
func (s *Service) StandardTasks(ctx context.Context) ([]domain.Task, error) {
	tasks, err := s.store.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	standard := tasks[:0]
	for _, t := range tasks {
		if t.IsStandard() {
			standard = append(standard, t)
		}
	}
	return standard, nil
}

// RandomTask picks one standard task uniformly.
func (s *Service) RandomTask(ctx context.Context) (*domain.Task, error) {
	tasks, err := s.StandardTasks(ctx)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, domain.ErrCatalogEmpty
	}
	task := tasks[rand.Intn(len(tasks))]
	return &task, nil
}

// RandomTasks draws n distinct standard tasks without replacement.
func (s *Service) RandomTasks(ctx context.Context, n int) ([]domain.Task, error) {
	tasks, err := s.StandardTasks(ctx)
	if err != nil {
		return nil, err
	}
	if n > len(tasks) {
		return nil, fmt.Errorf("%w: requested %d, have %d", domain.ErrInsufficientCatalog, n, len(tasks))
	}
	rand.Shuffle(len(tasks), func(i, j int) {
		tasks[i], tasks[j] = tasks[j], tasks[i]
	})
	return tasks[:n], nil
}
