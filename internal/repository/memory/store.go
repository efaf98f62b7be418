// Package memory provides an in-memory Store used by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clanhall/taskwheel/internal/domain"
)

type reactionKey struct {
	channelID string
	messageID string
}

type Store struct {
	mu sync.RWMutex

	tasks       map[int]domain.Task
	instances   []domain.TaskInstance
	votes       []domain.TaskVote
	voteOptions []domain.TaskVoteOption
	completions []domain.TaskCompletion
	reactions   map[reactionKey]map[string]domain.ReactionTally

	nextInstanceID   int64
	nextVoteID       int64
	nextOptionID     int64
	nextCompletionID int64
}

func NewStore() *Store {
	return &Store{
		tasks:            make(map[int]domain.Task),
		reactions:        make(map[reactionKey]map[string]domain.ReactionTally),
		nextInstanceID:   1,
		nextVoteID:       1,
		nextOptionID:     1,
		nextCompletionID: 1,
	}
}

func (s *Store) Tasks(_ context.Context) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (s *Store) TaskByID(_ context.Context, id int) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) MaxTaskID(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	max := 0
	for id := range s.tasks {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (s *Store) UpsertTask(_ context.Context, task domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = task
	return nil
}

func (s *Store) DeleteAllTasks(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[int]domain.Task)
	return nil
}

func (s *Store) ActiveInstance(_ context.Context, typ domain.TaskType, now time.Time) (*domain.TaskInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.TaskInstance
	for i := range s.instances {
		inst := s.instances[i]
		if inst.Type != typ || !inst.ActiveAt(now) {
			continue
		}
		if found == nil || inst.EndTime.After(found.EndTime) {
			copied := inst
			found = &copied
		}
	}
	return found, nil
}

func (s *Store) LatestInstance(_ context.Context, typ domain.TaskType) (*domain.TaskInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.TaskInstance
	for i := range s.instances {
		inst := s.instances[i]
		if inst.Type != typ {
			continue
		}
		if found == nil || inst.EndTime.After(found.EndTime) {
			copied := inst
			found = &copied
		}
	}
	return found, nil
}

func (s *Store) InstanceAt(_ context.Context, typ domain.TaskType, at time.Time) (*domain.TaskInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.TaskInstance
	for i := range s.instances {
		inst := s.instances[i]
		if inst.Type != typ || !inst.ActiveAt(at) {
			continue
		}
		if found == nil || inst.StartTime.After(found.StartTime) {
			copied := inst
			found = &copied
		}
	}
	return found, nil
}

func (s *Store) UndrawnInstances(_ context.Context) ([]domain.TaskInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var instances []domain.TaskInstance
	for _, inst := range s.instances {
		if !inst.DrawnPrize {
			instances = append(instances, inst)
		}
	}
	return instances, nil
}

func (s *Store) InstancesInRange(_ context.Context, from, to time.Time) ([]domain.TaskInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var instances []domain.TaskInstance
	for _, inst := range s.instances {
		if !inst.StartTime.Before(from) && inst.StartTime.Before(to) {
			instances = append(instances, inst)
		}
	}
	return instances, nil
}

func (s *Store) RotateInstance(_ context.Context, inst *domain.TaskInstance, now time.Time) (*domain.TaskInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var retired *domain.TaskInstance
	for i := range s.instances {
		if s.instances[i].Type == inst.Type && s.instances[i].ActiveAt(now) {
			s.instances[i].EndTime = now
			copied := s.instances[i]
			retired = &copied
		}
	}

	inst.ID = s.nextInstanceID
	s.nextInstanceID++
	s.instances = append(s.instances, *inst)
	return retired, nil
}

func (s *Store) EndInstance(_ context.Context, id int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.instances {
		if s.instances[i].ID == id && s.instances[i].EndTime.After(now) {
			s.instances[i].EndTime = now
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SetInstanceMessage(_ context.Context, id int64, channelID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.instances {
		if s.instances[i].ID == id {
			s.instances[i].ChannelID = channelID
			s.instances[i].MessageID = messageID
		}
	}
	return nil
}

func (s *Store) MarkInstancesDrawn(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		marked[id] = struct{}{}
	}
	for i := range s.instances {
		if _, ok := marked[s.instances[i].ID]; ok {
			s.instances[i].DrawnPrize = true
		}
	}
	return nil
}

func (s *Store) OpenVote(_ context.Context, vote *domain.TaskVote, options []domain.TaskVoteOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Enforced here, not by the caller: racing openers both pass any
	// read-then-check and only one may win.
	for _, v := range s.votes {
		if !v.Completed {
			return domain.ErrVoteOpen
		}
	}

	vote.ID = s.nextVoteID
	s.nextVoteID++
	s.votes = append(s.votes, *vote)

	for i := range options {
		options[i].ID = s.nextOptionID
		s.nextOptionID++
		options[i].VoteID = vote.ID
		s.voteOptions = append(s.voteOptions, options[i])
	}
	return nil
}

func (s *Store) UncompletedVote(_ context.Context) (*domain.TaskVote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.votes) - 1; i >= 0; i-- {
		if !s.votes[i].Completed {
			copied := s.votes[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *Store) LatestVote(_ context.Context) (*domain.TaskVote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.votes) == 0 {
		return nil, nil
	}
	copied := s.votes[len(s.votes)-1]
	return &copied, nil
}

func (s *Store) VoteOptions(_ context.Context, voteID int64) ([]domain.TaskVoteOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var options []domain.TaskVoteOption
	for _, o := range s.voteOptions {
		if o.VoteID == voteID {
			options = append(options, o)
		}
	}
	sort.Slice(options, func(i, j int) bool { return options[i].OptionIndex < options[j].OptionIndex })
	return options, nil
}

func (s *Store) CompleteVote(_ context.Context, voteID int64, selectedOptionID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.votes {
		if s.votes[i].ID == voteID {
			s.votes[i].Completed = true
			s.votes[i].SelectedOptionID = selectedOptionID
		}
	}
	return nil
}

func (s *Store) DeleteVote(_ context.Context, voteID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	votes := s.votes[:0]
	for _, v := range s.votes {
		if v.ID != voteID {
			votes = append(votes, v)
		}
	}
	s.votes = votes

	options := s.voteOptions[:0]
	for _, o := range s.voteOptions {
		if o.VoteID != voteID {
			options = append(options, o)
		}
	}
	s.voteOptions = options
	return nil
}

func (s *Store) SetVoteMessage(_ context.Context, voteID int64, channelID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.votes {
		if s.votes[i].ID == voteID {
			s.votes[i].ChannelID = channelID
			s.votes[i].MessageID = messageID
		}
	}
	return nil
}

func (s *Store) AddCompletion(_ context.Context, c *domain.TaskCompletion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.completions {
		if existing.InstanceID == c.InstanceID && existing.UserID == c.UserID {
			return false, nil
		}
	}
	c.ID = s.nextCompletionID
	s.nextCompletionID++
	s.completions = append(s.completions, *c)
	return true, nil
}

func (s *Store) CompletionsForInstance(ctx context.Context, instanceID int64) ([]domain.TaskCompletion, error) {
	return s.CompletionsForInstances(ctx, []int64{instanceID})
}

func (s *Store) CompletionsForInstances(_ context.Context, ids []int64) ([]domain.TaskCompletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var completions []domain.TaskCompletion
	for _, c := range s.completions {
		if _, ok := wanted[c.InstanceID]; ok {
			completions = append(completions, c)
		}
	}
	return completions, nil
}

func (s *Store) AdjustReaction(_ context.Context, channelID, messageID, symbol string, delta int, me bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reactionKey{channelID: channelID, messageID: messageID}
	tallies, ok := s.reactions[key]
	if !ok {
		tallies = make(map[string]domain.ReactionTally)
		s.reactions[key] = tallies
	}
	t := tallies[symbol]
	t.ChannelID = channelID
	t.MessageID = messageID
	t.Symbol = symbol
	t.Count += delta
	if t.Count < 0 {
		t.Count = 0
	}
	if me {
		t.Me = delta > 0
	}
	tallies[symbol] = t
	return nil
}

func (s *Store) ReactionTallies(_ context.Context, channelID, messageID string) ([]domain.ReactionTally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tallies []domain.ReactionTally
	for _, t := range s.reactions[reactionKey{channelID: channelID, messageID: messageID}] {
		if t.Count > 0 {
			tallies = append(tallies, t)
		}
	}
	sort.Slice(tallies, func(i, j int) bool { return tallies[i].Symbol < tallies[j].Symbol })
	return tallies, nil
}

func (s *Store) RemoveCompletionsByEvidence(_ context.Context, evidenceMessageID string) ([]domain.TaskCompletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []domain.TaskCompletion
	kept := s.completions[:0]
	for _, c := range s.completions {
		if c.EvidenceMessageID == evidenceMessageID {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	s.completions = kept
	return removed, nil
}
