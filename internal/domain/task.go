package domain

// Task is a reusable challenge definition. Description is a template string
// that may contain randomized placeholders; it is evaluated once per use.
type Task struct {
	ID          int
	Description string
	Instruction string
	Weight      int
}

// IsStandard reports whether the task takes part in normal rotation and
// voting. Weight zero marks a task that can only be injected explicitly.
func (t *Task) IsStandard() bool {
	return t.Weight > 0
}
