package protocol

// Channel name constants, dotted-colon style per §4.6 ("files:read-file",
// "terminal:input", "preview:browser-tab-opened"). Organized by the
// component each sub-router belongs to.

// Chat / checkpoint channels (C3 Snapshot Engine + message DAG).
const (
	ChanChatHistory           = "chat:history"
	ChanChatSend              = "chat:send"
	ChanChatTimeline          = "chat:timeline"
	ChanChatRestoreCheckpoint = "chat:restore-to-checkpoint"
	ChanChatMessagesChanged   = "chat:messages-changed" // event
)

// Terminal channels (C4 PTY Session Manager + C5 Terminal Stream Store).
const (
	ChanTerminalCreate        = "terminal:create"
	ChanTerminalInput         = "terminal:input"
	ChanTerminalResize        = "terminal:resize"
	ChanTerminalKill          = "terminal:kill"
	ChanTerminalOutput        = "terminal:output" // event
	ChanTerminalMissedOutput  = "terminal:missed-output"
	ChanTerminalExit          = "terminal:exit" // event
)

// Project channels.
const (
	ChanProjectsList   = "projects:list"
	ChanProjectsCreate = "projects:create"
	ChanProjectsOpen   = "projects:open"
	ChanProjectsDelete = "projects:delete"
)

// Git service channels (C11).
const (
	ChanGitStatus  = "git:status"
	ChanGitDiff    = "git:diff"
	ChanGitLog     = "git:log"
	ChanGitBranch  = "git:branch"
	ChanGitStash   = "git:stash"
	ChanGitCommit  = "git:commit"
)

// Tunnel channels (C7).
const (
	ChanTunnelStart    = "tunnel:start"
	ChanTunnelStop     = "tunnel:stop"
	ChanTunnelProgress = "tunnel:progress" // event
)

// Browser preview channels (C8 Browser Tab Manager + C9 WebRTC bridge).
const (
	ChanPreviewListTabs      = "preview:list-tabs"
	ChanPreviewSwitchTab     = "preview:switch-tab"
	ChanPreviewOpenTab       = "preview:open-tab"
	ChanPreviewCloseTab      = "preview:close-tab"
	ChanPreviewNavigate      = "preview:navigate"
	ChanPreviewSetViewport   = "preview:set-viewport"
	ChanPreviewTabOpened     = "preview:browser-tab-opened" // event
	ChanPreviewDialog        = "preview:browser-dialog"       // event
	ChanPreviewDialogInput   = "preview:browser-dialog-input"
	ChanPreviewStreamStart   = "preview:browser-stream-start"
	ChanPreviewStreamOffer   = "preview:browser-stream-offer"
	ChanPreviewStreamAnswer  = "preview:browser-stream-answer"
	ChanPreviewStreamIce     = "preview:browser-stream-ice"   // event
	ChanPreviewStreamState   = "preview:browser-stream-state" // event

	ChanPreviewConsoleGet     = "preview:console-get"
	ChanPreviewConsoleClear   = "preview:console-clear"
	ChanPreviewConsoleExecute = "preview:console-execute"
	ChanPreviewAnalyzeDOM     = "preview:analyze-dom"
	ChanPreviewScreenshot     = "preview:screenshot"
	ChanPreviewActions        = "preview:actions"
)

// MCP dispatcher channels (C10).
const (
	ChanMCPToolsList = "mcp:tools-list"
	ChanMCPToolsCall = "mcp:tools-call"
)
