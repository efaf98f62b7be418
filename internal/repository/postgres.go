package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clanhall/taskwheel/internal/domain"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const taskColumns = "id, description, instruction, weight"

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	if err := row.Scan(&t.ID, &t.Description, &t.Instruction, &t.Weight); err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *Postgres) Tasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := p.db.Query(ctx, "SELECT "+taskColumns+" FROM tasks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (p *Postgres) TaskByID(ctx context.Context, id int) (*domain.Task, error) {
	t, err := scanTask(p.db.QueryRow(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}
	return t, nil
}

func (p *Postgres) MaxTaskID(ctx context.Context) (int, error) {
	var max int
	err := p.db.QueryRow(ctx, "SELECT COALESCE(MAX(id), 0) FROM tasks").Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("select max task id: %w", err)
	}
	return max, nil
}

func (p *Postgres) UpsertTask(ctx context.Context, task domain.Task) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO tasks (id, description, instruction, weight)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET description = EXCLUDED.description,
		    instruction = EXCLUDED.instruction,
		    weight = EXCLUDED.weight`,
		task.ID, task.Description, task.Instruction, task.Weight,
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteAllTasks(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, "DELETE FROM tasks"); err != nil {
		return fmt.Errorf("delete tasks: %w", err)
	}
	return nil
}

const instanceColumns = "id, task_id, task_type, evaluated_task, start_time, end_time, COALESCE(channel_id, ''), COALESCE(message_id, ''), drawn_prize"

func scanInstance(row pgx.Row) (*domain.TaskInstance, error) {
	var i domain.TaskInstance
	err := row.Scan(&i.ID, &i.TaskID, &i.Type, &i.EvaluatedTask, &i.StartTime, &i.EndTime, &i.ChannelID, &i.MessageID, &i.DrawnPrize)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (p *Postgres) ActiveInstance(ctx context.Context, typ domain.TaskType, now time.Time) (*domain.TaskInstance, error) {
	row := p.db.QueryRow(ctx, `
		SELECT `+instanceColumns+` FROM task_instances
		WHERE task_type = $1 AND start_time <= $2 AND end_time > $2
		ORDER BY end_time DESC LIMIT 1`,
		typ, now,
	)
	i, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select active instance: %w", err)
	}
	return i, nil
}

func (p *Postgres) LatestInstance(ctx context.Context, typ domain.TaskType) (*domain.TaskInstance, error) {
	row := p.db.QueryRow(ctx, `
		SELECT `+instanceColumns+` FROM task_instances
		WHERE task_type = $1
		ORDER BY end_time DESC LIMIT 1`,
		typ,
	)
	i, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select latest instance: %w", err)
	}
	return i, nil
}

func (p *Postgres) InstanceAt(ctx context.Context, typ domain.TaskType, at time.Time) (*domain.TaskInstance, error) {
	row := p.db.QueryRow(ctx, `
		SELECT `+instanceColumns+` FROM task_instances
		WHERE task_type = $1 AND start_time <= $2 AND end_time > $2
		ORDER BY start_time DESC LIMIT 1`,
		typ, at,
	)
	i, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select instance at: %w", err)
	}
	return i, nil
}

func (p *Postgres) UndrawnInstances(ctx context.Context) ([]domain.TaskInstance, error) {
	return p.selectInstances(ctx, `
		SELECT `+instanceColumns+` FROM task_instances
		WHERE NOT drawn_prize ORDER BY id`)
}

func (p *Postgres) InstancesInRange(ctx context.Context, from, to time.Time) ([]domain.TaskInstance, error) {
	return p.selectInstances(ctx, `
		SELECT `+instanceColumns+` FROM task_instances
		WHERE start_time >= $1 AND start_time < $2 ORDER BY id`,
		from, to)
}

func (p *Postgres) selectInstances(ctx context.Context, query string, args ...any) ([]domain.TaskInstance, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select instances: %w", err)
	}
	defer rows.Close()

	var instances []domain.TaskInstance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, *i)
	}
	return instances, rows.Err()
}

func (p *Postgres) RotateInstance(ctx context.Context, inst *domain.TaskInstance, now time.Time) (*domain.TaskInstance, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE task_instances SET end_time = $2
		WHERE task_type = $1 AND start_time <= $2 AND end_time > $2
		RETURNING `+instanceColumns,
		inst.Type, now,
	)
	retired, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		retired = nil
	} else if err != nil {
		return nil, fmt.Errorf("retire active instance: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO task_instances (task_id, task_type, evaluated_task, start_time, end_time, drawn_prize)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING id`,
		inst.TaskID, inst.Type, inst.EvaluatedTask, inst.StartTime, inst.EndTime,
	).Scan(&inst.ID)
	if err != nil {
		return nil, fmt.Errorf("insert instance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return retired, nil
}

func (p *Postgres) EndInstance(ctx context.Context, id int64, now time.Time) (bool, error) {
	tag, err := p.db.Exec(ctx, `
		UPDATE task_instances SET end_time = $2
		WHERE id = $1 AND end_time > $2`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("end instance: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) SetInstanceMessage(ctx context.Context, id int64, channelID, messageID string) error {
	_, err := p.db.Exec(ctx, `
		UPDATE task_instances SET channel_id = $2, message_id = $3 WHERE id = $1`,
		id, channelID, messageID,
	)
	if err != nil {
		return fmt.Errorf("set instance message: %w", err)
	}
	return nil
}

func (p *Postgres) MarkInstancesDrawn(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.Exec(ctx, `
		UPDATE task_instances SET drawn_prize = TRUE WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark instances drawn: %w", err)
	}
	return nil
}

const voteColumns = "id, start_time, end_time, completed, COALESCE(voting_channel_id, ''), COALESCE(voting_message_id, ''), selected_option_id"

func scanVote(row pgx.Row) (*domain.TaskVote, error) {
	var v domain.TaskVote
	err := row.Scan(&v.ID, &v.StartTime, &v.EndTime, &v.Completed, &v.ChannelID, &v.MessageID, &v.SelectedOptionID)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (p *Postgres) OpenVote(ctx context.Context, vote *domain.TaskVote, options []domain.TaskVoteOption) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The guarded insert and the partial unique index on uncompleted votes
	// together keep concurrent openers down to one winner.
	err = tx.QueryRow(ctx, `
		INSERT INTO task_votes (start_time, end_time, completed)
		SELECT $1, $2, FALSE
		WHERE NOT EXISTS (SELECT 1 FROM task_votes WHERE NOT completed)
		RETURNING id`,
		vote.StartTime, vote.EndTime,
	).Scan(&vote.ID)
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		return domain.ErrVoteOpen
	}
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}

	for i := range options {
		options[i].VoteID = vote.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO task_vote_options (vote_id, option_index, task_id, evaluated_task)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			options[i].VoteID, options[i].OptionIndex, options[i].TaskID, options[i].EvaluatedTask,
		).Scan(&options[i].ID)
		if err != nil {
			return fmt.Errorf("insert vote option: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) UncompletedVote(ctx context.Context) (*domain.TaskVote, error) {
	row := p.db.QueryRow(ctx, "SELECT "+voteColumns+" FROM task_votes WHERE NOT completed ORDER BY id DESC LIMIT 1")
	v, err := scanVote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select uncompleted vote: %w", err)
	}
	return v, nil
}

func (p *Postgres) LatestVote(ctx context.Context) (*domain.TaskVote, error) {
	row := p.db.QueryRow(ctx, "SELECT "+voteColumns+" FROM task_votes ORDER BY id DESC LIMIT 1")
	v, err := scanVote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select latest vote: %w", err)
	}
	return v, nil
}

func (p *Postgres) VoteOptions(ctx context.Context, voteID int64) ([]domain.TaskVoteOption, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, vote_id, option_index, task_id, evaluated_task
		FROM task_vote_options WHERE vote_id = $1 ORDER BY option_index`,
		voteID,
	)
	if err != nil {
		return nil, fmt.Errorf("select vote options: %w", err)
	}
	defer rows.Close()

	var options []domain.TaskVoteOption
	for rows.Next() {
		var o domain.TaskVoteOption
		if err := rows.Scan(&o.ID, &o.VoteID, &o.OptionIndex, &o.TaskID, &o.EvaluatedTask); err != nil {
			return nil, fmt.Errorf("scan vote option: %w", err)
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

func (p *Postgres) CompleteVote(ctx context.Context, voteID int64, selectedOptionID *int64) error {
	_, err := p.db.Exec(ctx, `
		UPDATE task_votes SET completed = TRUE, selected_option_id = $2 WHERE id = $1`,
		voteID, selectedOptionID,
	)
	if err != nil {
		return fmt.Errorf("complete vote: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteVote(ctx context.Context, voteID int64) error {
	if _, err := p.db.Exec(ctx, "DELETE FROM task_votes WHERE id = $1", voteID); err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	return nil
}

func (p *Postgres) SetVoteMessage(ctx context.Context, voteID int64, channelID, messageID string) error {
	_, err := p.db.Exec(ctx, `
		UPDATE task_votes SET voting_channel_id = $2, voting_message_id = $3 WHERE id = $1`,
		voteID, channelID, messageID,
	)
	if err != nil {
		return fmt.Errorf("set vote message: %w", err)
	}
	return nil
}

const completionColumns = "id, instance_id, user_id, approver_id, completion_time, evidence_channel_id, evidence_message_id"

func (p *Postgres) AddCompletion(ctx context.Context, c *domain.TaskCompletion) (bool, error) {
	err := p.db.QueryRow(ctx, `
		INSERT INTO task_completions (instance_id, user_id, approver_id, completion_time, evidence_channel_id, evidence_message_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (instance_id, user_id) DO NOTHING
		RETURNING id`,
		c.InstanceID, c.UserID, c.ApproverID, c.CompletionTime, c.EvidenceChannelID, c.EvidenceMessageID,
	).Scan(&c.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert completion: %w", err)
	}
	return true, nil
}

func (p *Postgres) CompletionsForInstance(ctx context.Context, instanceID int64) ([]domain.TaskCompletion, error) {
	return p.selectCompletions(ctx, `
		SELECT `+completionColumns+` FROM task_completions
		WHERE instance_id = $1 ORDER BY id`,
		instanceID)
}

func (p *Postgres) CompletionsForInstances(ctx context.Context, ids []int64) ([]domain.TaskCompletion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return p.selectCompletions(ctx, `
		SELECT `+completionColumns+` FROM task_completions
		WHERE instance_id = ANY($1) ORDER BY id`,
		ids)
}

func (p *Postgres) RemoveCompletionsByEvidence(ctx context.Context, evidenceMessageID string) ([]domain.TaskCompletion, error) {
	return p.selectCompletions(ctx, `
		DELETE FROM task_completions WHERE evidence_message_id = $1
		RETURNING `+completionColumns,
		evidenceMessageID)
}

func (p *Postgres) AdjustReaction(ctx context.Context, channelID, messageID, symbol string, delta int, me bool) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO reaction_tallies (channel_id, message_id, symbol, count, me)
		VALUES ($1, $2, $3, GREATEST($4, 0), $5 AND $4 > 0)
		ON CONFLICT (channel_id, message_id, symbol) DO UPDATE
		SET count = GREATEST(reaction_tallies.count + $4, 0),
		    me = CASE WHEN $4 > 0 THEN reaction_tallies.me OR $5
		              ELSE reaction_tallies.me AND NOT $5 END`,
		channelID, messageID, symbol, delta, me,
	)
	if err != nil {
		return fmt.Errorf("adjust reaction: %w", err)
	}
	return nil
}

func (p *Postgres) ReactionTallies(ctx context.Context, channelID, messageID string) ([]domain.ReactionTally, error) {
	rows, err := p.db.Query(ctx, `
		SELECT symbol, count, me FROM reaction_tallies
		WHERE channel_id = $1 AND message_id = $2 AND count > 0
		ORDER BY symbol`,
		channelID, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("select reaction tallies: %w", err)
	}
	defer rows.Close()

	var tallies []domain.ReactionTally
	for rows.Next() {
		t := domain.ReactionTally{ChannelID: channelID, MessageID: messageID}
		if err := rows.Scan(&t.Symbol, &t.Count, &t.Me); err != nil {
			return nil, fmt.Errorf("scan reaction tally: %w", err)
		}
		tallies = append(tallies, t)
	}
	return tallies, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (p *Postgres) selectCompletions(ctx context.Context, query string, args ...any) ([]domain.TaskCompletion, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select completions: %w", err)
	}
	defer rows.Close()

	var completions []domain.TaskCompletion
	for rows.Next() {
		var c domain.TaskCompletion
		err := rows.Scan(&c.ID, &c.InstanceID, &c.UserID, &c.ApproverID, &c.CompletionTime, &c.EvidenceChannelID, &c.EvidenceMessageID)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, c)
	}
	return completions, rows.Err()
}
