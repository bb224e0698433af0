package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/sbc/internal/rpc"
	"github.com/matheus3301/sbc/internal/transcript"
	"github.com/matheus3301/sbc/internal/tui/client"
	"github.com/matheus3301/sbc/internal/tui/keys"
	"github.com/matheus3301/sbc/internal/tui/model"
	"github.com/matheus3301/sbc/internal/tui/ui"
	"github.com/matheus3301/sbc/internal/tui/views"
	"github.com/rivo/tview"
	grpcstatus "google.golang.org/grpc/status"
)

// Page names.
const (
	pageConversations = "Conversations"
	pageTranscript    = "Transcript"
	pageSearch        = "Search"
	pageDetails       = "Details"
	pageHelp          = "Help"
	pageAttachment    = "Attachment"
)

const actionTimeout = 15 * time.Second

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	root     *tview.Flex
	pages    *ui.Pages
	vm       *model.ViewModel
	registry *keys.Registry

	info   *ui.ProfileInfo
	menu   *ui.Menu
	crumbs *ui.Crumbs
	flash  *ui.FlashBar
	prompt *ui.Prompt

	convList *views.ConversationList
	thread   *views.MessageThread
	search   *views.SearchView
	details  *views.ConversationInfo
	help     *views.HelpView
	qr       *views.QRView

	components map[string]ui.Component
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.ThemeFromEnv()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		pages:    ui.NewPages(),
		vm:       model.NewViewModel(c),
		registry: keys.NewRegistry(),
		info:     ui.NewProfileInfo(theme),
		menu:     ui.NewMenu(theme),
		crumbs:   ui.NewCrumbs(theme),
		flash:    ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme),
		convList: views.NewConversationList(theme),
		thread:   views.NewMessageThread(theme),
		search:   views.NewSearchView(theme),
		details:  views.NewConversationInfo(theme),
		help:     views.NewHelpView(theme),
		qr:       views.NewQRView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.components = map[string]ui.Component{
		pageConversations: a.convList,
		pageTranscript:    a.thread,
		pageSearch:        a.search,
		pageDetails:       a.details,
		pageHelp:          a.help,
		pageAttachment:    a.qr,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	r := a.registry
	r.AddGlobal("quit", &keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Visible: true,
		Handler: func() {
			if a.pages.Depth() > 1 {
				a.back()
				return
			}
			a.Stop()
		},
	})
	r.AddGlobal("help", &keys.Action{
		Key: tcell.KeyRune, Rune: '?', Description: "?:help", Visible: true,
		Handler: func() { a.push(pageHelp) },
	})
	r.AddGlobal("search", &keys.Action{
		Key: tcell.KeyRune, Rune: 's', Description: "s:search", Visible: true,
		Handler: a.openSearch,
	})
	r.AddGlobal("command", &keys.Action{
		Key: tcell.KeyRune, Rune: ':', Description: "::command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})

	r.AddView(pageConversations, "filter", &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "/:filter", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	r.AddView(pageConversations, "clear", &keys.Action{
		Key: tcell.KeyRune, Rune: '0', Description: "0:all",
		Handler: func() { a.convList.ClearFilter() },
	})
	for n := 1; n <= 9; n++ {
		r.AddView(pageConversations, fmt.Sprintf("jump%d", n), &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n),
			Handler: func() {
				if id := a.convList.ByIndex(n); id != "" {
					a.openConversation(id)
				}
			},
		})
	}
	r.AddView(pageConversations, "transcript", &keys.Action{
		Key: tcell.KeyRune, Rune: 't', Description: "t:transcript",
		Handler: func() {
			if a.vm.Info().Conversation != "" {
				a.push(pageTranscript)
			}
		},
	})

	thread := func(name string, key tcell.Key, ch rune, fn func()) {
		r.AddView(pageTranscript, name, &keys.Action{Key: key, Rune: ch, Handler: fn})
	}
	thread("compose", tcell.KeyRune, 'i', func() { a.app.SetFocus(a.thread.Composer()) })
	thread("up", tcell.KeyRune, 'k', a.thread.SelectPrev)
	thread("down", tcell.KeyRune, 'j', a.thread.SelectNext)
	thread("upArrow", tcell.KeyUp, 0, a.thread.SelectPrev)
	thread("downArrow", tcell.KeyDown, 0, a.thread.SelectNext)
	thread("follow", tcell.KeyRune, 'G', a.thread.ClearSelection)
	thread("retry", tcell.KeyRune, 'r', a.retry)
	thread("dismiss", tcell.KeyRune, 'x', a.dismiss)
	thread("attachment", tcell.KeyRune, 'a', a.showAttachment)
	thread("details", tcell.KeyRune, 'd', func() { a.push(pageDetails) })
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, _ int) {
		if id := a.convList.ByIndex(row); id != "" {
			a.openConversation(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		a.do("send", func(ctx context.Context) error {
			_, err := a.vm.Send(ctx, text)
			return err
		}, nil)
	})

	a.search.SetOnQuery(a.runSearch)
	a.search.Results().SetSelectedFunc(func(_, _ int) {
		conv, _ := a.search.SelectedResult()
		if conv != "" {
			a.openConversation(conv)
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptFilter {
			a.convList.SetFilter(text)
			return
		}
		a.runCommand(ParseCommand(text))
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.crumbs.SetLabeler(func(page string) string {
		if c, ok := a.components[page]; ok && page == pageTranscript {
			return c.Name()
		}
		return ""
	})
	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(stack)
		if len(stack) > 0 {
			a.menu.Update(a.components[stack[len(stack)-1]].Hints())
		}
	})
}

func (a *App) setupLayout() {
	for name, c := range a.components {
		a.pages.AddPage(name, c.(tview.Primitive), true, false)
	}

	header := tview.NewFlex().
		AddItem(a.info, 0, 2, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(ui.NewLogo(a.theme), 20, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flash, 1, 0, false)

	a.pages.Reset(pageConversations)
	a.app.SetRoot(a.root, true)
	a.app.SetFocus(a.convList)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		focused := a.app.GetFocus()
		if focused == a.prompt.InputField {
			return event
		}
		// Text inputs get every key; Esc leaves them.
		if _, ok := focused.(*tview.InputField); ok {
			if event.Key() == tcell.KeyEscape {
				if focused == a.thread.Composer() {
					a.app.SetFocus(a.thread.Messages())
				} else {
					a.back()
				}
				return nil
			}
			return event
		}

		current := a.pages.Current()
		if event.Key() == tcell.KeyEscape {
			if current == pageTranscript {
				if _, ok := a.thread.Selected(); ok {
					a.thread.ClearSelection()
					return nil
				}
			}
			a.back()
			return nil
		}
		if a.registry.HandleEvent(current, event) {
			return nil
		}
		return event
	})
}

func (a *App) focusFor(page string) tview.Primitive {
	switch page {
	case pageTranscript:
		return a.thread.Messages()
	case pageSearch:
		return a.search.Input()
	}
	return a.components[page].(tview.Primitive)
}

func (a *App) push(page string) {
	if a.pages.Current() == page {
		return
	}
	a.pages.Push(page)
	a.app.SetFocus(a.focusFor(page))
}

// openSearch shows the search page, scoped to the open conversation when
// coming from its transcript.
func (a *App) openSearch() {
	scope := ""
	if a.pages.Current() == pageTranscript {
		scope = a.vm.Info().Conversation
	}
	a.search.SetScope(scope)
	a.push(pageSearch)
}

func (a *App) back() {
	if a.pages.Depth() <= 1 {
		return
	}
	a.pages.Pop()
	a.app.SetFocus(a.focusFor(a.pages.Current()))
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.app.SetFocus(a.focusFor(a.pages.Current()))
}

// do runs fn off the UI goroutine and reports failures in the flash bar.
// then, when set, runs on the UI goroutine after success.
func (a *App) do(what string, fn func(ctx context.Context) error, then func()) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, actionTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.vm.Flash.Err(fmt.Errorf("%s: %s", what, grpcstatus.Convert(err).Message()))
			return
		}
		if then != nil {
			a.app.QueueUpdateDraw(then)
		}
	}()
}

func (a *App) openConversation(id string) {
	a.do("open "+id, func(ctx context.Context) error {
		return a.vm.Open(ctx, id)
	}, func() {
		a.renderAll()
		a.push(pageTranscript)
	})
}

func (a *App) runSearch(query string) {
	if query == "" {
		return
	}
	var hits []model.SearchHit
	a.do("search", func(ctx context.Context) error {
		var err error
		hits, err = a.vm.Search(ctx, query, a.search.Scope())
		return err
	}, func() {
		a.search.Update(hits)
		a.app.SetFocus(a.search.Results())
	})
}

// failedTarget picks the selected entry, or the newest failed one when
// nothing is selected.
func (a *App) failedTarget() (transcript.Message, error) {
	if m, ok := a.thread.Selected(); ok {
		if m.Status != transcript.StatusFailed {
			return m, errors.New("selected message has not failed")
		}
		return m, nil
	}
	if m, ok := a.vm.LastFailed(); ok {
		return m, nil
	}
	return transcript.Message{}, errors.New("no failed message")
}

func (a *App) retry() {
	m, err := a.failedTarget()
	if err != nil {
		a.vm.Flash.Warn(err.Error())
		return
	}
	a.do("retry", func(ctx context.Context) error {
		return a.vm.Retry(ctx, m.CorrelationID)
	}, a.vm.Flash.Clear)
}

func (a *App) dismiss() {
	m, err := a.failedTarget()
	if err != nil {
		a.vm.Flash.Warn(err.Error())
		return
	}
	a.do("dismiss", func(ctx context.Context) error {
		return a.vm.Dismiss(ctx, m.CorrelationID)
	}, a.vm.Flash.Clear)
}

func (a *App) showAttachment() {
	m, ok := a.thread.Selected()
	if !ok || !m.Content.IsFile() {
		a.vm.Flash.Warn("select an attachment first (k/j)")
		return
	}
	a.qr.Show(*m.Content.File, rpc.ResolveLink(a.vm.Info().Backend, m.Content.File.URL))
	a.push(pageAttachment)
}

func (a *App) runCommand(cmd Command) {
	if err := cmd.Validate(); err != nil {
		a.vm.Flash.Warn(err.Error())
		return
	}
	switch cmd.Name {
	case "open":
		a.openConversation(cmd.Args)
	case "close":
		a.do("close", a.vm.Close, func() {
			a.pages.Reset(pageConversations)
			a.app.SetFocus(a.convList)
		})
	case "attach":
		a.do("attach", func(ctx context.Context) error {
			_, err := a.vm.SendFile(ctx, cmd.Args)
			return err
		}, nil)
	case "search":
		a.openSearch()
		a.search.Input().SetText(cmd.Args)
		a.runSearch(cmd.Args)
	case "retry":
		a.retry()
	case "dismiss":
		a.dismiss()
	case "help":
		a.push(pageHelp)
	case "quit":
		a.Stop()
	}
}

// renderAll redraws every view from the view model. It must run on the UI
// goroutine.
func (a *App) renderAll() {
	info := a.vm.Info()
	a.convList.Update(a.vm.Conversations(), info.Conversation)
	a.thread.SetConversation(info.Conversation, info.State)
	a.thread.Update(a.vm.Messages())
	a.details.Update(info)
	a.crumbs.Update(a.pages.Stack())
	a.renderChrome()
}

func (a *App) renderChrome() {
	info := a.vm.Info()
	self := info.SelfName
	if self == "" {
		self = fmt.Sprintf("#%d", info.SelfID)
	}
	a.info.Update(&ui.ProfileData{
		Profile:      info.Profile,
		Self:         self,
		Conversation: info.Conversation,
		State:        info.State,
		Messages:     int64(len(a.vm.Messages())),
		Pending:      info.Pending,
		Failed:       info.Failed,
		Uptime:       info.Uptime,
	})
	a.flash.Update(a.vm.Flash.GetMessage())
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(a.renderAll)
		case <-a.vm.Flash.Watch():
			a.app.QueueUpdateDraw(a.renderChrome)
		case <-ticker.C:
			a.app.QueueUpdateDraw(a.renderChrome)
		case <-a.ctx.Done():
			return
		}
	}
}

// Run starts the TUI application. When the daemon already has a
// conversation open the transcript is shown first.
func (a *App) Run() error {
	go func() {
		if err := a.vm.LoadStatus(a.ctx); err != nil {
			a.vm.Flash.Err(err)
		}
		if a.vm.Info().Conversation != "" {
			_ = a.vm.LoadSnapshot(a.ctx)
			a.app.QueueUpdateDraw(func() {
				a.renderAll()
				a.push(pageTranscript)
			})
		}
		go a.vm.Watch(a.ctx, 2*time.Second)
		a.refreshLoop()
	}()

	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
