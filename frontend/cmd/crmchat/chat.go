package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavoo-crm/crmchat/frontend/internal/composer"
	"github.com/wavoo-crm/crmchat/frontend/internal/conversation"
	"github.com/wavoo-crm/crmchat/frontend/internal/metrics"
	"github.com/wavoo-crm/crmchat/frontend/internal/presence"
	"github.com/wavoo-crm/crmchat/frontend/internal/render"
	"github.com/wavoo-crm/crmchat/frontend/internal/session"
	"github.com/wavoo-crm/crmchat/frontend/internal/setup"
	"github.com/wavoo-crm/crmchat/shared/domain"
	internal_errors "github.com/wavoo-crm/crmchat/shared/errors"
)

var noMicrophone bool

var chatCmd = &cobra.Command{
	Use:   "chat <contactId>",
	Short: "Open a live conversation with a contact",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&noMicrophone, "no-mic", false, "disable voice notes")
}

// chatView prints conversation changes. Writes come from the socket
// dispatcher and from send goroutines, so they are serialized.
type chatView struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

func (v *chatView) println(a ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, a...)
}

func (v *chatView) printf(format string, a ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format, a...)
}

func (v *chatView) onChange(store *conversation.Store, c conversation.Change) {
	now := v.now()
	switch c.Kind {
	case conversation.ChangeReset:
		v.printf("Loading conversation %s...\n", c.ContactID)
	case conversation.ChangeLoaded:
		msgs := store.Messages()
		v.mu.Lock()
		for _, m := range msgs {
			fmt.Fprintln(v.out, render.Message(m, now))
		}
		fmt.Fprintf(v.out, "-- %d messages, /help for commands --\n", len(msgs))
		v.mu.Unlock()
	default:
		msgs := store.Messages()
		if c.Index < 0 || c.Index >= len(msgs) {
			return
		}
		prefix := ""
		if c.Kind != conversation.ChangePending && c.Kind != conversation.ChangeAppended {
			prefix = "~ "
		}
		v.println(prefix + render.Message(msgs[c.Index], now))
	}
}

func (v *chatView) showError(action string, err error) {
	v.printf("! %s: %s\n", action, internal_errors.Message(err))
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, user, err := requireSession(cmd)
	if err != nil {
		return err
	}
	contactID := domain.ID(args[0])

	view := &chatView{out: cmd.OutOrStdout(), now: time.Now}
	deps.Session.SetNotifier(session.NotifierFunc(func(n domain.MessageNotification) {
		view.printf("* new message from %s: %s\n", render.Text(n.ContactName), render.Text(n.MessageBody))
	}))

	tracker := deps.NewTracker(user.TenantID)
	defer tracker.Close()
	tracker.OnChange(func(e presence.Event) {
		if e.Kind == presence.EventPresence {
			return
		}
		view.println(render.StatusBadge(tracker.Status(), tracker.Connected()))
	})

	var mic composer.Microphone
	if !noMicrophone {
		mic = composer.DefaultMicrophone()
	}

	// The load itself is printed once OpenChat returns; later changes are
	// printed as they happen.
	view.printf("Loading conversation %s...\n", contactID)
	var store *conversation.Store
	var storeMu sync.Mutex
	chat, err := deps.OpenChat(ctx, contactID, mic, func(c conversation.Change) {
		storeMu.Lock()
		s := store
		storeMu.Unlock()
		if s != nil {
			view.onChange(s, c)
		}
	})
	if chat == nil {
		return fmt.Errorf("failed to open conversation: %s", internal_errors.Message(err))
	}
	defer chat.Close()
	storeMu.Lock()
	store = chat.Store
	storeMu.Unlock()
	if err != nil {
		view.showError("failed to load messages", err)
	}
	view.onChange(chat.Store, conversation.Change{Kind: conversation.ChangeLoaded, ContactID: contactID})

	deps.StartDebugServer(func() metrics.Health {
		return metrics.Health{
			SocketConnected: tracker.Connected(),
			ChannelState:    string(tracker.Status().State),
			Conversation:    chat.Store.State().String(),
			Pending:         chat.Store.PendingCount(),
		}
	})

	return chatLoop(ctx, cmd.InOrStdin(), view, chat, tracker)
}

func chatLoop(ctx context.Context, in io.Reader, view *chatView, chat *setup.Chat, tracker *presence.Tracker) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	async := func(action string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				view.showError(action, err)
			}
		}()
	}

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return sessionEnded(ctx)
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		input, err := parseChatLine(line)
		if err != nil {
			view.println("! " + err.Error())
			continue
		}
		c := chat.Composer
		switch input.action {
		case actNone:
		case actText:
			async("send failed", func() error {
				_, err := c.SendText(ctx, input.text)
				return err
			})
		case actFile:
			if err := c.AttachPath(input.path); err != nil {
				view.showError("attach failed", err)
				continue
			}
			if p := c.Preview(); p != nil {
				view.printf("Uploading %s (%s, %s)\n", p.FileName, p.MimeType, render.FileSize(p.Size()))
			}
			async("file not sent", func() error {
				_, err := c.SendAttachment(ctx, input.text)
				return err
			})
		case actRecord:
			if err := c.StartRecording(ctx); err != nil {
				view.showError("recording", err)
				continue
			}
			view.println("Recording... /stop to send, /cancel to discard")
		case actStop:
			elapsed, recording := c.RecordingElapsed()
			if !recording {
				view.showError("recording", internal_errors.ErrNotRecording)
				continue
			}
			view.printf("Sending voice note (%s)\n", render.Elapsed(elapsed))
			async("voice note not sent", func() error {
				_, err := c.StopRecording(ctx)
				return err
			})
		case actCancel:
			c.CancelRecording()
			view.println("Recording discarded")
		case actDelete:
			async("delete failed", func() error {
				return c.Delete(ctx, input.id, input.forEveryone)
			})
		case actStatus:
			view.println(render.StatusBadge(tracker.Status(), tracker.Connected()))
		case actHelp:
			view.println(chatHelp)
		case actQuit:
			return nil
		}
	}
}
