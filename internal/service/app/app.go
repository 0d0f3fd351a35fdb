package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"drchat/internal/model"
	"drchat/internal/protocol/doubleratchet"
	"drchat/internal/utils/log"
)

// resetCommand typed in the input box drops the stored session with the peer.
const resetCommand = "/reset"

type (
	App struct {
		app     *tview.Application
		chatbox *tview.TextView
		input   *tview.InputField

		host       string
		httpClient *http.Client

		suite    doubleratchet.Primitives
		cfg      doubleratchet.Config
		sessions SessionStore

		userRepo UserStore
		user     *model.User

		toName string
		conv   *Conversation

		wmu  sync.Mutex
		conn *websocket.Conn
	}
)

func NewApp(host string, suite doubleratchet.Primitives, cfg doubleratchet.Config, userRepo UserStore, sessions SessionStore) *App {
	return &App{
		app:        tview.NewApplication(),
		host:       host,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		suite:      suite,
		cfg:        cfg,
		sessions:   sessions,
		userRepo:   userRepo,
	}
}

// Run blocks until the UI exits.
func (c *App) Run(ctx context.Context, name, toName string) error {
	user, err := c.getUserAndCreateIfNotExist(ctx, name)
	if err != nil {
		return fmt.Errorf("get user info: %w", err)
	}
	c.user = user

	if toName == "" {
		fmt.Print("Enter recipient's name: ")
		if _, err := fmt.Scan(&toName); err != nil {
			return err
		}
	}
	c.toName = toName

	toSharedKeys, err := c.getSharedKeysOfUser(c.toName)
	if err != nil {
		return fmt.Errorf("fetch keys of %s: %w", c.toName, err)
	}

	c.conv, err = NewConversation(c.suite, c.cfg, c.sessions, c.user, c.toName, toSharedKeys)
	if err != nil {
		return err
	}

	c.conn, err = c.initWebhook(c.user.Name)
	if err != nil {
		return fmt.Errorf("init webhook to server: %w", err)
	}
	defer c.conn.Close()

	go c.listenOnWebhook(ctx)
	go func() {
		<-ctx.Done()
		c.app.Stop()
	}()
	return c.renderUI()
}

// blocking function
func (c *App) renderUI() error {
	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(fmt.Sprintf(" Chat with %s ", c.toName))

	c.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" New Message ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := c.input.GetText()
		if text == "" {
			return
		}
		c.input.SetText("")

		if text == resetCommand {
			go func() {
				if err := c.conv.Reset(context.Background()); err != nil {
					log.Error("reset session failed", zap.Error(err))
					c.notice("[red]reset failed:[-] %v", err)
					return
				}
				c.notice("[blue]session with %s reset; ask them to /reset too[-]", c.toName)
			}()
			return
		}

		go func(msg string) {
			if err := c.SendMessage(context.Background(), msg); err != nil {
				log.Error("send message failed", zap.Error(err))
				c.notice("[red]not sent:[-] %v", err)
			}
		}(text)
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.chatbox, 0, 1, false).
		AddItem(c.input, 3, 0, true)

	return c.app.SetRoot(layout, true).SetFocus(c.input).Run()
}

func (c *App) notice(format string, args ...any) {
	c.app.QueueUpdateDraw(func() {
		fmt.Fprintf(c.chatbox, format+"\n", args...)
		c.chatbox.ScrollToEnd()
	})
}

func (c *App) listenOnWebhook(ctx context.Context) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug("web socket closed", zap.Error(err))
			c.notice("[red]disconnected from relay[-]")
			return
		}

		var message model.Message
		if err := json.Unmarshal(data, &message); err != nil {
			log.Error("unmarshal message failed", zap.Error(err))
			continue
		}

		if err := c.ReceiveMessage(ctx, &message); err != nil {
			log.Error("receive message failed", zap.String("from", message.From), zap.Error(err))
			c.notice("[red]dropped message from %s:[-] %s", message.From, reason(err))
		}
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, doubleratchet.ErrDuplicateMessage):
		return "duplicate"
	case errors.Is(err, doubleratchet.ErrAuthenticationFailed):
		return "failed authentication"
	case errors.Is(err, doubleratchet.ErrTooManySkipped), errors.Is(err, doubleratchet.ErrResourceExhausted):
		return "too far ahead"
	case errors.Is(err, ErrWrongEndpoint):
		return "not part of this conversation"
	}
	return err.Error()
}

// SendMessage seals and writes under one lock so frames leave in chain order.
func (c *App) SendMessage(ctx context.Context, msg string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	m, err := c.conv.Seal(ctx, msg)
	if err != nil {
		return err
	}

	if err := c.conn.WriteJSON(m); err != nil {
		return err
	}

	c.notice("[yellow]You:[-] %s", tview.Escape(msg))
	return nil
}

func (c *App) ReceiveMessage(ctx context.Context, message *model.Message) error {
	msgBytes, err := c.conv.Open(ctx, message)
	if err != nil {
		return err
	}

	c.notice("[green]%s:[-] %s", message.From, tview.Escape(string(msgBytes)))
	return nil
}
