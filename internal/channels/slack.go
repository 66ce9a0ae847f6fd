package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/LoomClaw/LoomClaw/internal/bus"
	"github.com/LoomClaw/LoomClaw/internal/config"
)

// SlackChannel connects via Socket Mode. Inbound messages become user
// messages on the bus; agent responses addressed to "slack" are posted
// back to the originating conversation.
type SlackChannel struct {
	BaseChannel
	config config.SlackConfig

	api    *slack.Client
	sock   *socketmode.Client
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSlackChannel(cfg config.SlackConfig, b *bus.Bus) *SlackChannel {
	return &SlackChannel{
		BaseChannel: BaseChannel{Bus: b},
		config:      cfg,
	}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	if strings.TrimSpace(c.config.BotToken) == "" || strings.TrimSpace(c.config.AppToken) == "" {
		return fmt.Errorf("slack channel requires both botToken and appToken")
	}

	c.api = slack.New(c.config.BotToken, slack.OptionAppLevelToken(c.config.AppToken))
	c.sock = socketmode.New(c.api)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	sub, err := c.Bus.Subscribe(bus.TopicAgentResponse)
	if err != nil {
		cancel()
		return err
	}

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		if err := c.sock.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("Slack socket mode stopped", "error", err)
		}
	}()
	go func() {
		defer c.wg.Done()
		c.readEvents(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		defer sub.Cancel()
		c.deliverOutbound(runCtx, sub)
	}()
	return nil
}

func (c *SlackChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

func (c *SlackChannel) readEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.sock.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			if evt.Request != nil {
				c.sock.Ack(*evt.Request)
			}
			ev, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok || ev.Type != slackevents.CallbackEvent {
				continue
			}
			switch in := ev.InnerEvent.Data.(type) {
			case *slackevents.MessageEvent:
				c.handleMessage(ctx, in)
			case *slackevents.AppMentionEvent:
				c.handleMention(ctx, in)
			}
		}
	}
}

func (c *SlackChannel) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev == nil || shouldDropMessageEvent(ev.BotID, ev.SubType, ev.Text) {
		return
	}
	if !senderAllowed(c.config.AllowFrom, ev.User) {
		slog.Debug("Slack message dropped by allow list", "user", ev.User)
		return
	}
	c.publishInbound(ctx, ev.User, ev.Channel, ev.ThreadTimeStamp, ev.ChannelType, ev.Text)
}

func (c *SlackChannel) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev == nil || strings.TrimSpace(ev.Text) == "" {
		return
	}
	if !senderAllowed(c.config.AllowFrom, ev.User) {
		return
	}
	c.publishInbound(ctx, ev.User, ev.Channel, ev.ThreadTimeStamp, "channel", stripMention(ev.Text))
}

// publishInbound routes replies by conversation: the Slack channel ID is
// the bus user id, the human sender rides along in metadata.
func (c *SlackChannel) publishInbound(ctx context.Context, sender, channelID, threadTS, channelType, text string) {
	msg := bus.NewUserMessage(c.Name(), channelID, text)
	msg.Metadata = map[string]string{
		"slack_user": strings.TrimSpace(sender),
	}
	if threadTS != "" {
		msg.Metadata["slack_thread_ts"] = threadTS
	}
	if channelType != "" {
		msg.Metadata["slack_channel_type"] = channelType
	}
	if err := c.Bus.Publish(ctx, msg); err != nil {
		slog.Error("Slack inbound publish failed", "error", err)
	}
}

func (c *SlackChannel) deliverOutbound(ctx context.Context, sub *bus.Subscription) {
	for {
		env, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		resp, ok := env.(*bus.AgentResponse)
		if !ok || resp.Platform != c.Name() || strings.TrimSpace(resp.Content) == "" {
			continue
		}
		if err := c.Send(ctx, resp); err != nil {
			slog.Error("Slack send failed", "channel", resp.UserID, "error", err)
		}
	}
}

func (c *SlackChannel) Send(ctx context.Context, msg *bus.AgentResponse) error {
	_, _, err := c.api.PostMessageContext(ctx, msg.UserID, slack.MsgOptionText(msg.Content, false))
	return err
}

// shouldDropMessageEvent filters echoes of our own posts and message
// edits/deletions, which arrive with a bot id or a subtype set.
func shouldDropMessageEvent(botID, subType, text string) bool {
	if strings.TrimSpace(botID) != "" {
		return true
	}
	if strings.TrimSpace(subType) != "" {
		return true
	}
	return strings.TrimSpace(text) == ""
}

// stripMention removes the leading <@UXXXX> token from app mentions.
func stripMention(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "<@") {
		if end := strings.Index(t, ">"); end > 0 {
			t = strings.TrimSpace(t[end+1:])
		}
	}
	return t
}
