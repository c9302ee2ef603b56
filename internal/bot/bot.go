// Package bot answers private OneBot messages through the ask service.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	zero "github.com/wdvxdr1123/ZeroBot"
	"github.com/wdvxdr1123/ZeroBot/driver"
	"github.com/wdvxdr1123/ZeroBot/message"

	"github.com/Youssef2430/portfolio/internal/ask"
	"github.com/Youssef2430/portfolio/internal/chat"
)

// Apology replaces the answer when the pipeline fails.
const Apology = "Sorry, I couldn't answer that right now. Please try again in a moment."

type Answerer interface {
	Ask(ctx context.Context, req ask.Request) (*ask.Response, error)
	DefaultModel() string
}

type Config struct {
	WSURL       string
	AccessToken string
	OwnerID     int64
	NickName    string
}

type Bot struct {
	cfg    Config
	ask    Answerer
	chat   *chat.Manager
	done   context.Context
	cancel context.CancelFunc
	saves  sync.WaitGroup
}

func New(cfg Config, answerer Answerer, chatMgr *chat.Manager) *Bot {
	if cfg.NickName == "" {
		cfg.NickName = "portfolio-bot"
	}
	done, cancel := context.WithCancel(context.Background())
	return &Bot{cfg: cfg, ask: answerer, chat: chatMgr, done: done, cancel: cancel}
}

// runContext derives the context handlers answer under. It ends with parent
// or at Stop, whichever comes first.
func (b *Bot) runContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	context.AfterFunc(b.done, cancel)
	return ctx
}

// Run connects to the OneBot endpoint and blocks.
func (b *Bot) Run(ctx context.Context) {
	ctx = b.runContext(ctx)

	ws := driver.NewWebSocketClient(b.cfg.WSURL, b.cfg.AccessToken)

	zero.OnCommand("reset", zero.OnlyPrivate).SetBlock(true).Handle(func(zctx *zero.Ctx) {
		b.chat.Reset(userKey(zctx.Event.UserID))
		zctx.Send(message.Text("Conversation cleared."))
	})

	zero.OnCommand("status", zero.OnlyPrivate, b.ownerFilter()).SetBlock(true).Handle(func(zctx *zero.Ctx) {
		zctx.Send(message.Text(b.status()))
	})

	zero.OnMessage(zero.OnlyPrivate, notCommand).Handle(func(zctx *zero.Ctx) {
		text := strings.TrimSpace(zctx.ExtractPlainText())
		if text == "" {
			return // images, stickers
		}
		zctx.Send(message.Text(b.answer(ctx, userKey(zctx.Event.UserID), text)))
	})

	slog.Info("bot starting", "ws_url", b.cfg.WSURL, "owner", b.cfg.OwnerID)

	zero.RunAndBlock(&zero.Config{
		NickName:      []string{b.cfg.NickName},
		CommandPrefix: "/",
		SuperUsers:    []int64{b.cfg.OwnerID},
		Driver:        []zero.Driver{ws},
	}, nil)
}

func (b *Bot) Stop() {
	b.cancel()
	b.saves.Wait()
	if err := b.chat.Save(); err != nil {
		slog.Error("save sessions failed", "error", err)
	}
}

// answer runs one question through the pipeline with the user's history. On
// failure the user gets the apology and the history is left as it was.
func (b *Bot) answer(ctx context.Context, user, text string) string {
	slog.Info("received message", "from", user, "length", len(text))

	resp, err := b.ask.Ask(ctx, ask.Request{
		Message:  text,
		History:  b.chat.History(user),
		ClientID: "onebot:" + user,
	})
	if err != nil {
		slog.Error("answer failed", "from", user, "error", err)
		return Apology
	}

	b.chat.AddExchange(user, text, resp.Text)
	b.saves.Add(1)
	go func() {
		defer b.saves.Done()
		if err := b.chat.Save(); err != nil {
			slog.Error("save sessions failed", "error", err)
		}
	}()
	return resp.Text
}

func (b *Bot) status() string {
	return fmt.Sprintf("running, model %s, %d conversations", b.ask.DefaultModel(), b.chat.Len())
}

func (b *Bot) ownerFilter() zero.Rule {
	return func(ctx *zero.Ctx) bool {
		return ctx.Event.UserID == b.cfg.OwnerID
	}
}

func notCommand(ctx *zero.Ctx) bool {
	return !strings.HasPrefix(strings.TrimSpace(ctx.ExtractPlainText()), "/")
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
