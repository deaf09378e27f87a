package offboarding

// RunEvent はランの状態遷移を引き起こす操作です。
type RunEvent string

const (
	RunEventPause    RunEvent = "pause"
	RunEventStart    RunEvent = "start"
	RunEventComplete RunEvent = "complete"
	RunEventCancel   RunEvent = "cancel"
)

// TaskEvent はタスクの状態遷移を引き起こす操作です。
type TaskEvent string

const (
	TaskEventStart    TaskEvent = "start"
	TaskEventBlock    TaskEvent = "block"
	TaskEventUnblock  TaskEvent = "unblock"
	TaskEventComplete TaskEvent = "complete"
)

// RunTransition はイベントによる Src から Dst への遷移です。
type RunTransition struct {
	Event RunEvent
	Src   RunStatus
	Dst   RunStatus
}

// TaskTransition はイベントによる Src から Dst への遷移です。
type TaskTransition struct {
	Event TaskEvent
	Src   TaskStatus
	Dst   TaskStatus
}

// RunTransitions はランの許可された遷移の一覧です。
// pause と start は終了状態以外から強制的に遷移させます。
var RunTransitions = []RunTransition{
	{Event: RunEventPause, Src: RunStatusDraft, Dst: RunStatusDraft},
	{Event: RunEventPause, Src: RunStatusScheduled, Dst: RunStatusDraft},
	{Event: RunEventPause, Src: RunStatusInProgress, Dst: RunStatusDraft},
	{Event: RunEventStart, Src: RunStatusDraft, Dst: RunStatusInProgress},
	{Event: RunEventStart, Src: RunStatusScheduled, Dst: RunStatusInProgress},
	{Event: RunEventStart, Src: RunStatusInProgress, Dst: RunStatusInProgress},
	{Event: RunEventComplete, Src: RunStatusDraft, Dst: RunStatusCompleted},
	{Event: RunEventComplete, Src: RunStatusScheduled, Dst: RunStatusCompleted},
	{Event: RunEventComplete, Src: RunStatusInProgress, Dst: RunStatusCompleted},
	{Event: RunEventCancel, Src: RunStatusDraft, Dst: RunStatusCancelled},
	{Event: RunEventCancel, Src: RunStatusScheduled, Dst: RunStatusCancelled},
	{Event: RunEventCancel, Src: RunStatusInProgress, Dst: RunStatusCancelled},
}

// TaskTransitions はタスクの許可された遷移の一覧です。
var TaskTransitions = []TaskTransition{
	{Event: TaskEventStart, Src: TaskStatusNotStarted, Dst: TaskStatusInProgress},
	{Event: TaskEventBlock, Src: TaskStatusNotStarted, Dst: TaskStatusBlocked},
	{Event: TaskEventBlock, Src: TaskStatusInProgress, Dst: TaskStatusBlocked},
	{Event: TaskEventBlock, Src: TaskStatusBlocked, Dst: TaskStatusBlocked},
	{Event: TaskEventUnblock, Src: TaskStatusBlocked, Dst: TaskStatusNotStarted},
	{Event: TaskEventComplete, Src: TaskStatusNotStarted, Dst: TaskStatusCompleted},
	{Event: TaskEventComplete, Src: TaskStatusInProgress, Dst: TaskStatusCompleted},
	{Event: TaskEventComplete, Src: TaskStatusBlocked, Dst: TaskStatusCompleted},
}

// NextRunStatus は遷移先を返します。許可されていなければ false を返します。
func NextRunStatus(src RunStatus, event RunEvent) (RunStatus, bool) {
	for _, tr := range RunTransitions {
		if tr.Event == event && tr.Src == src {
			return tr.Dst, true
		}
	}
	return "", false
}

// NextTaskStatus は遷移先を返します。許可されていなければ false を返します。
func NextTaskStatus(src TaskStatus, event TaskEvent) (TaskStatus, bool) {
	for _, tr := range TaskTransitions {
		if tr.Event == event && tr.Src == src {
			return tr.Dst, true
		}
	}
	return "", false
}

// IsTerminal は完了またはキャンセル済みかを返します。
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusCancelled:
		return true
	case RunStatusDraft, RunStatusScheduled, RunStatusInProgress:
		return false
	default:
		return false
	}
}

// IsValid は既知のステータスかを返します。
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusDraft, RunStatusScheduled, RunStatusInProgress, RunStatusCompleted, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal はタスクが完了済みかを返します。
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted:
		return true
	case TaskStatusNotStarted, TaskStatusInProgress, TaskStatusBlocked:
		return false
	default:
		return false
	}
}

// IsValid は既知のステータスかを返します。
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusNotStarted, TaskStatusInProgress, TaskStatusBlocked, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// ParseRole は既知のロールであれば Role を返します。
func ParseRole(raw string) (Role, bool) {
	switch role := Role(normalizeToken(raw)); role {
	case RoleEmployee, RoleManager, RoleHR, RoleIT, RoleFinance:
		return role, true
	default:
		return "", false
	}
}

// IsAutomated は自動アクションとして認識されているコードかを返します。
func (c SystemCode) IsAutomated() bool {
	switch c {
	case SystemCodeSuspendIdentity:
		return true
	default:
		return false
	}
}
