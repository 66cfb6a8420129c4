package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "OpenAgent-Chain/internal/errors"
	"OpenAgent-Chain/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelLog      Channel = "log"
	ChannelEmail    Channel = "email"
	ChannelDingTalk Channel = "dingtalk"
	ChannelSlack    Channel = "slack"
)

// Event 描述一次需要告警的事件。
type Event struct {
	Code       xerrors.Code
	Message    string
	Severity   xerrors.Severity
	Channel    Channel
	RunID      string
	Attempts   int
	MaxRetries int
	Metadata   map[string]string
	OccurredAt time.Time
}

// headline 是单行摘要,适合聊天类渠道。
func (e Event) headline() string {
	return fmt.Sprintf("[%s] %s - %s (重试 %d/%d)", e.Severity, e.Code, e.Message, e.Attempts, e.MaxRetries)
}

// describe 是多行正文,适合邮件等长文本渠道。
func (e Event) describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "告警时间: %s\n", e.OccurredAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "运行: %s\n", e.RunID)
	fmt.Fprintf(&b, "重试: %d/%d\n", e.Attempts, e.MaxRetries)
	fmt.Fprintf(&b, "错误码: %s\n", e.Code)
	fmt.Fprintf(&b, "描述: %s", e.Message)
	if len(e.Metadata) > 0 {
		b.WriteString("\n详情:\n")
		for k, v := range e.Metadata {
			fmt.Fprintf(&b, "- %s: %s\n", k, v)
		}
	}
	return b.String()
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 把同一事件投递到全部注册渠道,单渠道失败不影响其余渠道。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

var _ Dispatcher = (*FanoutDispatcher)(nil)

// NewFanout 创建 FanoutDispatcher,nil 通知器被忽略。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			set[n.Channel()] = n
		}
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 广播事件,收集所有渠道错误后一并返回。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for channel, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

func skipUnconfigured(name string, event Event) {
	logger.L().Warn(name+" 未正确配置，跳过发送", slog.String("run_id", event.RunID))
}

// LogNotifier 将告警写入审计日志，是默认的兜底渠道。
type LogNotifier struct{}

// Channel 返回日志渠道。
func (n *LogNotifier) Channel() Channel { return ChannelLog }

// Notify 记录告警日志。
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	logger.Audit().Warn("触发告警",
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("run_id", event.RunID),
		slog.Int("attempts", event.Attempts),
		slog.Int("max_retries", event.MaxRetries),
		slog.String("message", event.Message),
	)
	return nil
}

// EmailSender 定义发送邮件所需的能力。
type EmailSender interface {
	Send(ctx context.Context, subject, content string, to []string) error
}

// EmailNotifier 通过邮件发送告警。
type EmailNotifier struct {
	Sender        EmailSender
	To            []string
	SubjectPrefix string
}

// Channel 返回邮件渠道。
func (n *EmailNotifier) Channel() Channel { return ChannelEmail }

// Notify 发送邮件。未配置时静默降级,不算失败。
func (n *EmailNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil || len(n.To) == 0 {
		skipUnconfigured("EmailNotifier", event)
		return nil
	}
	subject := fmt.Sprintf("%s[%s] %s", n.SubjectPrefix, event.Severity, event.Code)
	return n.Sender.Send(ctx, subject, event.describe(), n.To)
}

// DingTalkSender 负责向钉钉机器人发送消息。
type DingTalkSender interface {
	Send(ctx context.Context, content string) error
}

// DingTalkNotifier 通过钉钉机器人发送告警。
type DingTalkNotifier struct {
	Sender DingTalkSender
}

// Channel 返回钉钉渠道。
func (n *DingTalkNotifier) Channel() Channel { return ChannelDingTalk }

// Notify 发送钉钉消息。
func (n *DingTalkNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil {
		skipUnconfigured("DingTalkNotifier", event)
		return nil
	}
	return n.Sender.Send(ctx, event.headline()+"\n"+event.describe())
}

// SlackSender 负责向 Slack 渠道发送消息。
type SlackSender interface {
	Send(ctx context.Context, channel, content string) error
}

// SlackNotifier 通过 Slack 发送告警。
type SlackNotifier struct {
	Sender    SlackSender
	ChannelID string
}

// Channel 返回 Slack 渠道。
func (n *SlackNotifier) Channel() Channel { return ChannelSlack }

// Notify 发送 Slack 消息。
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil || n.ChannelID == "" {
		skipUnconfigured("SlackNotifier", event)
		return nil
	}
	return n.Sender.Send(ctx, n.ChannelID, "*"+event.headline()+"*")
}
