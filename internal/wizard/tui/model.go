// Package tui renders the profile wizard in the terminal. The model holds one text input
// per field of the current step; Enter submits the step through the wizard off the UI loop.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"pickup-portal/client/internal/wizard"
)

var stepTitles = map[wizard.Step]string{
	wizard.StepPhone:   "Enter your mobile number",
	wizard.StepOTP:     "Verify the OTP we sent you",
	wizard.StepProfile: "Tell us about yourself",
	wizard.StepAddress: "Where should we pick up?",
}

var fieldLabels = map[wizard.Field]string{
	wizard.FieldMobile:         "Mobile number",
	wizard.FieldOTP:            "OTP",
	wizard.FieldName:           "Full name",
	wizard.FieldDOB:            "Date of birth",
	wizard.FieldGender:         "Gender",
	wizard.FieldBaseAddress:    "Address",
	wizard.FieldPostOfficeName: "Post office",
	wizard.FieldPincode:        "Pincode",
	wizard.FieldCity:           "City",
	wizard.FieldDistrict:       "District",
	wizard.FieldState:          "State",
}

var fieldPlaceholders = map[wizard.Field]string{
	wizard.FieldMobile:   "10 digits",
	wizard.FieldOTP:      "6 digits",
	wizard.FieldDOB:      "YYYY-MM-DD",
	wizard.FieldGender:   strings.Join(wizard.Genders, " / "),
	wizard.FieldPincode:  "6 digits",
	wizard.FieldDistrict: "optional",
	wizard.FieldState:    "optional",
}

// submittedMsg is delivered when a Submit call returns.
type submittedMsg struct {
	err error
}

// Model is the bubbletea model over a wizard.
type Model struct {
	ctx     context.Context
	wiz     *wizard.Wizard
	state   wizard.State
	step    wizard.Step
	fields  []wizard.Field
	inputs  []textinput.Model
	focus   int
	spinner spinner.Model
	// err is a misuse error from Submit; API failures live in state.
	err error
}

// New opens wiz and returns a model showing its first step. If the profile is already
// complete the wizard stays closed and the model quits immediately.
func New(ctx context.Context, wiz *wizard.Wizard) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = focusStyle
	m := &Model{ctx: ctx, wiz: wiz, spinner: sp}
	m.state = wiz.Open()
	m.rebuild()
	return m
}

// State returns the wizard state as of the last update.
func (m *Model) State() wizard.State {
	return m.state
}

func (m *Model) Init() tea.Cmd {
	if !m.state.Open {
		return tea.Quit
	}
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case submittedMsg:
		m.err = msg.err
		return m.sync()
	case spinner.TickMsg:
		if !m.state.IsSubmitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m.updateFocused(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.wiz.Cancel()
		m.state = m.wiz.State()
		return m, tea.Quit
	case "tab", "down":
		m.moveFocus(1)
		return m, nil
	case "shift+tab", "up":
		m.moveFocus(-1)
		return m, nil
	case "ctrl+b":
		if m.wiz.Back() {
			return m.sync()
		}
		return m, nil
	case "enter":
		if m.state.IsSubmitting {
			return m, nil
		}
		if m.focus < len(m.inputs)-1 {
			m.moveFocus(1)
			return m, nil
		}
		return m.submit()
	}
	model, cmd := m.updateFocused(msg)
	m.pushField(m.focus)
	return model, cmd
}

// submit copies every input into the wizard and runs Submit as a command.
func (m *Model) submit() (tea.Model, tea.Cmd) {
	for i := range m.inputs {
		m.pushField(i)
	}
	wiz, ctx := m.wiz, m.ctx
	m.state.IsSubmitting = true
	return m, tea.Batch(
		func() tea.Msg { return submittedMsg{err: wiz.Submit(ctx)} },
		m.spinner.Tick,
	)
}

// sync pulls the wizard state, rebuilding the inputs when the step changed.
func (m *Model) sync() (tea.Model, tea.Cmd) {
	m.state = m.wiz.State()
	if !m.state.Open {
		return m, tea.Quit
	}
	if m.state.Step != m.step {
		m.rebuild()
		return m, textinput.Blink
	}
	m.focusFirstError()
	return m, nil
}

func (m *Model) rebuild() {
	m.step = m.state.Step
	m.fields = wizard.StepFields[m.step]
	m.inputs = make([]textinput.Model, len(m.fields))
	for i, f := range m.fields {
		in := textinput.New()
		in.Prompt = ""
		in.Placeholder = fieldPlaceholders[f]
		in.SetValue(m.state.Fields[f])
		switch f {
		case wizard.FieldMobile:
			in.CharLimit = 10
		case wizard.FieldOTP:
			in.CharLimit = 6
			in.EchoMode = textinput.EchoPassword
		case wizard.FieldPincode:
			in.CharLimit = 6
		case wizard.FieldDOB:
			in.CharLimit = 10
		}
		m.inputs[i] = in
	}
	m.focus = 0
	m.applyFocus()
}

func (m *Model) focusFirstError() {
	for i, f := range m.fields {
		if _, ok := m.state.FieldErrors[f]; ok {
			m.focus = i
			m.applyFocus()
			return
		}
	}
}

func (m *Model) moveFocus(delta int) {
	if len(m.inputs) == 0 {
		return
	}
	m.focus = (m.focus + delta + len(m.inputs)) % len(m.inputs)
	m.applyFocus()
}

func (m *Model) applyFocus() {
	for i := range m.inputs {
		if i == m.focus {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

func (m *Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.focus >= len(m.inputs) {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// pushField copies input i into the wizard and clears its displayed error.
func (m *Model) pushField(i int) {
	if i >= len(m.inputs) {
		return
	}
	f := m.fields[i]
	if m.state.Fields[f] == m.inputs[i].Value() {
		return
	}
	if err := m.wiz.SetField(f, m.inputs[i].Value()); err == nil {
		m.state.Fields[f] = m.inputs[i].Value()
		delete(m.state.FieldErrors, f)
	}
}

func (m *Model) View() string {
	if !m.state.Open {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(stepTitles[m.step]))
	b.WriteString("\n")
	b.WriteString(stepStyle.Render(fmt.Sprintf("Step %d of 4", int(m.step))))
	b.WriteString("\n\n")

	for i, f := range m.fields {
		label := labelStyle.Render(fieldLabels[f])
		if i == m.focus {
			label = focusStyle.Inherit(labelStyle).Render(fieldLabels[f])
		}
		b.WriteString(label)
		b.WriteString(m.inputs[i].View())
		b.WriteString("\n")
		if msg, ok := m.state.FieldErrors[f]; ok {
			b.WriteString(fieldErr.Render(msg))
			b.WriteString("\n")
		}
	}

	if m.state.ErrorMessage != "" {
		b.WriteString("\n")
		b.WriteString(bannerStyle.Render(m.state.ErrorMessage))
		b.WriteString("\n")
	}
	if m.state.Notice != "" {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(m.state.Notice))
		b.WriteString("\n")
	}
	if m.state.IsSubmitting {
		b.WriteString("\n")
		b.WriteString(m.spinner.View())
		b.WriteString(" Submitting...\n")
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(bannerStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}

	help := "enter next/submit • tab move • esc cancel"
	if m.step == wizard.StepOTP {
		help = "enter verify • ctrl+b change number / resend • esc cancel"
	}
	b.WriteString(helpStyle.Render(help))
	return boxStyle.Render(b.String())
}
