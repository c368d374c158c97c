package conversation

import (
	"context"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/notify"
)

type State int

const (
	StateIdle State = iota

	// Issue creation.
	StateSelectTitle
	StateSelectDescription
	StateAddFiles
	StateSendIssue

	// Comment on a tracked issue.
	StateEnterComment
	StateCommentFiles

	// Return a closed issue to rework.
	StateEnterRework
	StateReworkFiles

	// Files-only note on a tracked issue.
	StateAttachFiles
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateSelectTitle:       "select_title",
	StateSelectDescription: "select_description",
	StateAddFiles:          "add_files",
	StateSendIssue:         "send_issue",
	StateEnterComment:      "enter_comment",
	StateCommentFiles:      "comment_files",
	StateEnterRework:       "enter_rework",
	StateReworkFiles:       "rework_files",
	StateAttachFiles:       "attach_files",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// InputClass is what a message means to the state machine.
type InputClass int

const (
	InputText InputClass = iota
	InputFiles
	InputBack
	InputDone
	InputConfirm
	InputCancel
)

var inputNames = map[InputClass]string{
	InputText:    "text",
	InputFiles:   "files",
	InputBack:    "back",
	InputDone:    "done",
	InputConfirm: "confirm",
	InputCancel:  "cancel",
}

func (c InputClass) String() string {
	if name, ok := inputNames[c]; ok {
		return name
	}
	return "unknown"
}

// classify maps a message to an input class. Reply keyboard labels are
// commands; anything else with files is a file upload.
func classify(in Inbound) InputClass {
	if len(in.Files) > 0 {
		return InputFiles
	}
	switch in.Text {
	case notify.LabelBack:
		return InputBack
	case notify.LabelDone, notify.LabelContinue:
		return InputDone
	case notify.LabelSend:
		return InputConfirm
	case notify.LabelCancel:
		return InputCancel
	}
	return InputText
}

type transition struct {
	from  State
	input InputClass
}

type handler func(e *Engine, ctx context.Context, t *turn) error

// transitions is the complete state machine. A (state, input) pair missing
// here is answered with an "unexpected input" reply and changes nothing.
var transitions = map[transition]handler{
	{StateSelectTitle, InputText}: (*Engine).setTitle,
	{StateSelectTitle, InputBack}: (*Engine).back,

	{StateSelectDescription, InputText}: (*Engine).setDescription,
	{StateSelectDescription, InputBack}: (*Engine).back,

	{StateAddFiles, InputFiles}: (*Engine).collectFiles,
	{StateAddFiles, InputDone}:  (*Engine).showSummary,
	{StateAddFiles, InputBack}:  (*Engine).back,

	{StateSendIssue, InputConfirm}: (*Engine).submitIssue,
	{StateSendIssue, InputBack}:    (*Engine).back,

	{StateEnterComment, InputText}: (*Engine).setComment,
	{StateEnterComment, InputBack}: (*Engine).back,

	{StateCommentFiles, InputFiles}: (*Engine).collectFiles,
	{StateCommentFiles, InputDone}:  (*Engine).submitComment,
	{StateCommentFiles, InputBack}:  (*Engine).back,

	{StateEnterRework, InputText}: (*Engine).setComment,
	{StateEnterRework, InputBack}: (*Engine).back,

	{StateReworkFiles, InputFiles}: (*Engine).collectFiles,
	{StateReworkFiles, InputDone}:  (*Engine).submitRework,
	{StateReworkFiles, InputBack}:  (*Engine).back,

	{StateAttachFiles, InputFiles}: (*Engine).collectFiles,
	{StateAttachFiles, InputDone}:  (*Engine).submitAttach,
	{StateAttachFiles, InputBack}:  (*Engine).back,
}

func init() {
	for s := range stateNames {
		if s != StateIdle {
			transitions[transition{s, InputCancel}] = (*Engine).cancel
		}
	}
}
