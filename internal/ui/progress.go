package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/warpcode/internal/transfer"
)

// TransferMode represents send or receive
type TransferMode int

const (
	ModeSend TransferMode = iota
	ModeReceive
)

const tickInterval = 100 * time.Millisecond

type (
	tickMsg      time.Time
	fileStartMsg transfer.FileInfo
	fileDoneMsg  string
	stateMsg     string

	progressMsg struct {
		id    string
		bytes int64
	}

	fileErrorMsg struct {
		info transfer.FileInfo
		err  error
	}
)

type fileProgress struct {
	id        string
	name      string
	size      int64
	current   int64
	startTime time.Time
	complete  bool
	failed    bool
	errMsg    string
	bar       progress.Model
}

func (f *fileProgress) finished() bool {
	return f.complete || f.failed
}

// Model is the bubbletea model behind TransferUI. Files are added as they
// start, since a receiver only learns about them one at a time.
type Model struct {
	mode      TransferMode
	state     string
	files     []*fileProgress
	index     map[string]*fileProgress
	spinner   spinner.Model
	startTime time.Time
	barWidth  int
	quitting  bool
	now       func() time.Time
}

func NewModel(mode TransferMode) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &Model{
		mode:      mode,
		state:     "Connecting...",
		index:     make(map[string]*fileProgress),
		spinner:   s,
		startTime: time.Now(),
		barWidth:  25,
		now:       time.Now,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.barWidth = max(10, min(25, msg.Width-60))
		for _, f := range m.files {
			f.bar.Width = m.barWidth
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if !m.quitting {
			return m, tick()
		}

	case stateMsg:
		m.state = string(msg)

	case fileStartMsg:
		m.addFile(transfer.FileInfo(msg))

	case progressMsg:
		if f, ok := m.index[msg.id]; ok && !f.finished() {
			if f.startTime.IsZero() {
				f.startTime = m.now()
			}
			f.current = msg.bytes
		}

	case fileDoneMsg:
		if f, ok := m.index[string(msg)]; ok {
			f.complete = true
			f.current = f.size
		}

	case fileErrorMsg:
		f, ok := m.index[msg.info.FileID]
		if !ok {
			f = m.addFile(msg.info)
		}
		f.failed = true
		f.errMsg = msg.err.Error()

	case progress.FrameMsg:
		var cmds []tea.Cmd
		for _, f := range m.files {
			model, cmd := f.bar.Update(msg)
			f.bar = model.(progress.Model)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *Model) addFile(info transfer.FileInfo) *fileProgress {
	if f, ok := m.index[info.FileID]; ok {
		return f
	}
	f := &fileProgress{
		id:   info.FileID,
		name: info.Name,
		size: info.Size,
		bar: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(m.barWidth),
			progress.WithoutPercentage(),
		),
	}
	m.files = append(m.files, f)
	m.index[info.FileID] = f
	return f
}

// Totals returns the bytes moved so far and the announced total.
func (m *Model) Totals() (current, total int64) {
	for _, f := range m.files {
		current += f.current
		total += f.size
	}
	return current, total
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	modeIcon, modeText := IconSend, "Sending"
	if m.mode == ModeReceive {
		modeIcon, modeText = IconReceive, "Receiving"
	}
	fmt.Fprintf(&b, "\n%s %s Files\n\n", modeIcon, modeText)
	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), m.state)

	current, total := m.Totals()
	var overall float64
	if total > 0 {
		overall = float64(current) / float64(total) * 100
	}
	var speed float64
	if elapsed := m.now().Sub(m.startTime).Seconds(); elapsed > 0 {
		speed = float64(current) / elapsed
	}
	fmt.Fprintf(&b, "Overall: %s (%s/%s) %s\n\n",
		BoldStyle.Render(fmt.Sprintf("%.1f%%", overall)),
		FormatBytes(current),
		FormatBytes(total),
		MutedStyle.Render(FormatSpeed(speed)),
	)

	for _, f := range m.files {
		b.WriteString(m.fileLine(f))
		b.WriteString("\n")
	}

	b.WriteString("\n" + MutedStyle.Render("Press q to cancel"))
	return b.String()
}

func (m *Model) fileLine(f *fileProgress) string {
	var icon string
	var nameStyle lipgloss.Style

	switch {
	case f.failed:
		icon, nameStyle = IconError, ErrorStyle
	case f.complete:
		icon, nameStyle = IconSuccess, SuccessStyle
	case f.current > 0:
		icon, nameStyle = m.spinner.View(), lipgloss.NewStyle()
	default:
		icon, nameStyle = IconPending, MutedStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  %s %s ", icon, nameStyle.Width(24).Render(truncateString(f.name, 22)))

	percent := 1.0
	if f.size > 0 {
		percent = float64(f.current) / float64(f.size)
	} else if !f.complete {
		percent = 0
	}
	b.WriteString(f.bar.ViewAs(percent))
	fmt.Fprintf(&b, " %5.1f%%", percent*100)

	if f.failed {
		b.WriteString(" " + ErrorStyle.Render(f.errMsg))
		return b.String()
	}

	if !f.finished() && f.current > 0 && !f.startTime.IsZero() {
		if elapsed := m.now().Sub(f.startTime).Seconds(); elapsed > 0 {
			fileSpeed := float64(f.current) / elapsed
			b.WriteString(MutedStyle.Render(" " + FormatSpeed(fileSpeed)))
			if remaining := f.size - f.current; remaining > 0 && fileSpeed > 0 {
				eta := time.Duration(float64(remaining) / fileSpeed * float64(time.Second))
				b.WriteString(MutedStyle.Render(" ETA: " + FormatDuration(eta)))
			}
		}
	}
	return b.String()
}

// TransferUI runs a Model in its own bubbletea program and implements
// transfer.Observer, so a Sender or Receiver can drive it directly.
type TransferUI struct {
	model   *Model
	program *tea.Program

	cancelled chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

var _ transfer.Observer = (*TransferUI)(nil)

// NewTransferUI renders to out and reads keys from in. A nil in disables
// keyboard input.
func NewTransferUI(mode TransferMode, in io.Reader, out io.Writer) *TransferUI {
	model := NewModel(mode)
	opts := []tea.ProgramOption{tea.WithOutput(out), tea.WithoutSignalHandler()}
	if in == nil {
		opts = append(opts, tea.WithInput(nil))
	} else {
		opts = append(opts, tea.WithInput(in))
	}

	return &TransferUI{
		model:     model,
		program:   tea.NewProgram(model, opts...),
		cancelled: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the program in a goroutine.
func (u *TransferUI) Start() {
	go func() {
		defer close(u.done)
		final, err := u.program.Run()
		if err != nil {
			return
		}
		if m, ok := final.(*Model); ok && m.quitting {
			close(u.cancelled)
		}
	}()
}

// Cancelled is closed when the user quits the UI.
func (u *TransferUI) Cancelled() <-chan struct{} {
	return u.cancelled
}

func (u *TransferUI) SetState(state string) {
	u.program.Send(stateMsg(state))
}

func (u *TransferUI) OnFileStart(info transfer.FileInfo) {
	u.program.Send(fileStartMsg(info))
}

func (u *TransferUI) OnProgress(info transfer.FileInfo, bytes int64) {
	u.program.Send(progressMsg{id: info.FileID, bytes: bytes})
}

func (u *TransferUI) OnFileComplete(f transfer.File) {
	u.program.Send(fileDoneMsg(f.ID))
}

func (u *TransferUI) OnFileError(info transfer.FileInfo, err error) {
	u.program.Send(fileErrorMsg{info: info, err: err})
}

// Stop renders the final frame and waits for the program to exit.
func (u *TransferUI) Stop() {
	u.stopOnce.Do(func() {
		u.program.Quit()
		<-u.done
	})
}
