package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/studystim/studystim/internal/timer"
)

// Actions are what the room screen asks of the session behind it. They
// must return without blocking.
type Actions interface {
	Chat(text string)
	ShareTimer(s timer.Snapshot)
	Leave()
}

// Messages fed into the room screen from the session.
type (
	JoinedMsg struct {
		RoomID       string
		Participants []string
	}
	PeerJoinedMsg  struct{ Username string }
	PeerLeftMsg    struct{ Username string }
	RemovedMsg     struct{ RoomID string }
	ChatMsg        struct{ Username, Text string }
	TimerMsg       struct{ Snapshot timer.Snapshot }
	StatusMsg      struct{ Text string }
	ConnectionMsg  struct{ State string }
	CallStateMsg   struct{ State string }
	PeerDeviceMsg  struct{ Device string }
	RemoteMediaMsg struct {
		Tracks int
		Video  bool
	}
)

type tickMsg time.Time

const helpText = "/start  /pause  /reset  /timer <minutes>  /leave  /help"

// RoomModel is the bubbletea model for a study room.
type RoomModel struct {
	roomID   string
	username string
	capacity int
	actions  Actions

	joined       bool
	participants []string
	peerDevice   string
	connection   string
	callState    string
	media        string
	status       string

	countdown *timer.Countdown
	lastTick  time.Time

	lines    []string
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width    int
	height   int
	quitting bool

	now func() time.Time
}

// NewRoomModel creates the room screen for username joining roomID.
func NewRoomModel(roomID, username string, capacity int, actions Actions) *RoomModel {
	ti := textinput.New()
	ti.Placeholder = "Say something, or /help"
	ti.CharLimit = 500
	ti.Prompt = IconChat + " "
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	// Letters belong to the input; only paging keys scroll the chat.
	vp := viewport.New(80, 10)
	vp.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
	}

	return &RoomModel{
		roomID:     roomID,
		username:   username,
		capacity:   capacity,
		actions:    actions,
		connection: "connecting",
		callState:  "absent",
		countdown:  timer.New(),
		viewport:   vp,
		input:      ti,
		spinner:    s,
		now:        time.Now,
	}
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, m.leave()
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.SetValue("")
			if cmd := m.submit(line); cmd != nil {
				return m, cmd
			}
			return m, nil
		}

	case tickMsg:
		m.advance(time.Time(msg))
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case JoinedMsg:
		m.joined = true
		m.roomID = msg.RoomID
		m.participants = append([]string(nil), msg.Participants...)
		m.system("You joined room %s", msg.RoomID)
		for _, name := range msg.Participants {
			if name != m.username {
				m.system("%s is in the room", name)
			}
		}
		m.updatePresence()

	case PeerJoinedMsg:
		if !contains(m.participants, msg.Username) {
			m.participants = append(m.participants, msg.Username)
		}
		m.system("%s joined the room", msg.Username)
		m.updatePresence()
		// Bring the newcomer up to date.
		m.shareTimer()

	case PeerLeftMsg:
		m.participants = remove(m.participants, msg.Username)
		m.peerDevice = ""
		m.media = ""
		m.system("%s left the room", msg.Username)
		m.updatePresence()

	case RemovedMsg:
		m.joined = false
		m.participants = nil
		m.peerDevice = ""
		m.media = ""
		m.system("%s You are no longer in room %s", IconWarning, msg.RoomID)
		m.status = "Rejoin failed, restart to try again"

	case ChatMsg:
		m.chat(msg.Username, msg.Text)

	case TimerMsg:
		if err := m.countdown.Apply(msg.Snapshot); err != nil {
			m.status = err.Error()
			break
		}
		m.lastTick = m.now()
		if msg.Snapshot.IsRunning {
			m.system("Timer synced at %s", msg.Snapshot)
		} else {
			m.system("Timer set to %s", msg.Snapshot)
		}

	case StatusMsg:
		m.status = msg.Text

	case ConnectionMsg:
		m.connection = msg.State

	case CallStateMsg:
		m.callState = msg.State

	case PeerDeviceMsg:
		m.peerDevice = msg.Device

	case RemoteMediaMsg:
		if msg.Video {
			m.media = fmt.Sprintf("%s partner video (%d tracks)", IconVideo, msg.Tracks)
		} else {
			m.media = fmt.Sprintf("partner audio (%d tracks)", msg.Tracks)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit handles one line of input, either a command or a chat message.
func (m *RoomModel) submit(line string) tea.Cmd {
	cmd, err := ParseCommand(line)
	if err != nil {
		m.status = err.Error()
		return nil
	}

	switch cmd.Name {
	case "":
		return nil
	case CommandChat:
		if !m.joined {
			m.status = "Not in a room yet"
			return nil
		}
		m.actions.Chat(cmd.Text)
		m.chat(m.username, cmd.Text)
	case CommandStart:
		if !m.countdown.Start() {
			m.status = "Timer is already running or finished"
			return nil
		}
		m.lastTick = m.now()
		m.system("%s started the timer", m.username)
		m.shareTimer()
	case CommandPause:
		m.countdown.Pause()
		m.system("%s paused the timer at %s", m.username, m.countdown)
		m.shareTimer()
	case CommandReset:
		m.countdown.Reset()
		m.system("%s reset the timer", m.username)
		m.shareTimer()
	case CommandTimer:
		if err := m.countdown.Set(cmd.Minutes, 0); err != nil {
			m.status = err.Error()
			return nil
		}
		m.system("%s set the timer to %s", m.username, m.countdown)
		m.shareTimer()
	case CommandHelp:
		m.system("Commands: %s", helpText)
	case CommandLeave:
		return m.leave()
	}
	return nil
}

func (m *RoomModel) leave() tea.Cmd {
	if !m.quitting {
		m.quitting = true
		m.actions.Leave()
	}
	return tea.Quit
}

func (m *RoomModel) shareTimer() {
	if m.joined {
		m.actions.ShareTimer(m.countdown.Snapshot())
	}
}

// advance moves the countdown by the wall-clock time since the previous
// tick.
func (m *RoomModel) advance(now time.Time) {
	if !m.countdown.Running() {
		m.lastTick = now
		return
	}
	elapsed := now.Sub(m.lastTick)
	if m.lastTick.IsZero() || elapsed < 0 {
		elapsed = time.Second
	}
	m.lastTick = now
	if m.countdown.Tick(elapsed) {
		m.status = IconDone + " Study session completed!"
		m.system("Study session completed!")
	}
}

func (m *RoomModel) updatePresence() {
	if len(m.participants) < 2 {
		m.status = "Waiting for partner to join..."
	} else {
		m.status = "Connected with study partner!"
	}
}

func (m *RoomModel) chat(username, text string) {
	name := PeerNameStyle.Render(username)
	if username == m.username {
		name = OwnNameStyle.Render(username)
	}
	m.appendLine(fmt.Sprintf("%s %s: %s", m.stamp(), name, text))
}

func (m *RoomModel) system(format string, args ...any) {
	m.appendLine(m.stamp() + " " + SystemLineStyle.Render(fmt.Sprintf(format, args...)))
}

func (m *RoomModel) stamp() string {
	return TimeStampStyle.Render(m.now().Format("15:04"))
}

func (m *RoomModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *RoomModel) resize() {
	// Header, timer box, participants table, input and footer.
	reserved := 14
	h := m.height - reserved
	if h < 3 {
		h = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.input.Width = max(m.width-4, 10)
	m.viewport.GotoBottom()
}

func (m *RoomModel) View() string {
	if m.quitting {
		return ""
	}

	title := HeaderStyle.Render(fmt.Sprintf("%s StudyStim  %s %s", IconBook, IconRoom, m.roomID))

	timerBox := TimerStyle
	if m.countdown.Running() {
		timerBox = TimerRunningStyle
	}
	clock := timerBox.Render(IconTimer + "  " + m.countdown.String())

	people := make([]Participant, 0, len(m.participants))
	for _, name := range m.participants {
		p := Participant{Name: name, Self: name == m.username}
		if !p.Self {
			p.Device = m.peerDevice
		}
		people = append(people, p)
	}

	var presence string
	if m.joined {
		presence = ParticipantsView(people, m.capacity)
	} else {
		presence = m.spinner.View() + " Joining " + m.roomID + "..."
	}

	top := lipgloss.JoinHorizontal(lipgloss.Top, clock, "  ", presence)

	var b strings.Builder
	b.WriteString(title + "\n\n")
	b.WriteString(top + "\n\n")
	b.WriteString(m.viewport.View() + "\n")
	b.WriteString(m.input.View() + "\n")
	b.WriteString(m.footer())
	return b.String()
}

func (m *RoomModel) footer() string {
	parts := []string{
		fmt.Sprintf("%s %s", IconConnect, m.connection),
		fmt.Sprintf("call %s", m.callState),
	}
	if m.media != "" {
		parts = append(parts, m.media)
	}
	line := FooterStyle.Render(strings.Join(parts, " • "))
	if m.status != "" {
		line = StatusStyle.Render(m.status) + " " + line
	}
	return line
}

// Participants returns the names shown on screen.
func (m *RoomModel) Participants() []string {
	return append([]string(nil), m.participants...)
}

// Timer returns the local countdown's current snapshot.
func (m *RoomModel) Timer() timer.Snapshot {
	return m.countdown.Snapshot()
}

func (m *RoomModel) Status() string { return m.status }

// Command names understood by the room screen.
const (
	CommandChat  = "chat"
	CommandStart = "start"
	CommandPause = "pause"
	CommandReset = "reset"
	CommandTimer = "timer"
	CommandLeave = "leave"
	CommandHelp  = "help"
)

// Command is one parsed line of input.
type Command struct {
	Name    string
	Text    string
	Minutes int
}

// ParseCommand turns an input line into a Command. Lines not starting with
// a slash are chat. A blank line yields a zero Command.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return Command{Name: CommandChat, Text: line}, nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command, try %s", helpText)
	}

	switch name := strings.ToLower(fields[0]); name {
	case "start", "pause", "reset", "help":
		return Command{Name: name}, nil
	case "leave", "quit", "exit":
		return Command{Name: CommandLeave}, nil
	case "timer", "preset":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("usage: /timer <minutes> (presets %s)", presetList())
		}
		minutes, err := strconv.Atoi(fields[1])
		if err != nil || minutes <= 0 {
			return Command{}, fmt.Errorf("invalid minutes %q", fields[1])
		}
		return Command{Name: CommandTimer, Minutes: minutes}, nil
	default:
		return Command{}, fmt.Errorf("unknown command /%s, try %s", name, helpText)
	}
}

func presetList() string {
	out := make([]string, len(timer.Presets))
	for i, p := range timer.Presets {
		out[i] = strconv.Itoa(p)
	}
	return strings.Join(out, ", ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
