package service

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
	tele "gopkg.in/telebot.v3"

	"github.com/hopehouse/reminders/pkg/logger/types"
)

const alertFailureMessage = "failed to send log to channel"

type alertSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// AlertService forwards log entries to a Telegram channel.
type AlertService struct {
	bot    alertSender
	logger *types.Logger
}

func NewAlertService(bot alertSender, logger *types.Logger) *AlertService {
	return &AlertService{
		bot:    bot,
		logger: logger,
	}
}

// LogHook returns a log hook for the specified channel
//
// Parameters:
//   - channelID is the channel to send the log to
//   - level is the minimum log level to send
func (s *AlertService) LogHook(channelID int64, level zapcore.Level) types.LogHook {
	chat := &tele.Chat{ID: channelID}
	return func(log types.Log) {
		if log.Level < level || strings.Contains(log.Message, alertFailureMessage) {
			return
		}
		go func() {
			if _, err := s.bot.Send(chat, FormatAlert(log), tele.ModeHTML); err != nil {
				s.logger.Errorf("%s %d: %v", alertFailureMessage, channelID, err)
			}
		}()
	}
}

// FormatAlert renders a log entry as a Telegram HTML message.
func FormatAlert(log types.Log) string {
	return fmt.Sprintf(
		"<b>%s</b> <code>%s</code>\n%s\n<i>%s</i> %s",
		log.Level.CapitalString(),
		escapeHTML(log.LoggerName),
		escapeHTML(log.Message),
		escapeHTML(log.Caller),
		log.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"),
	)
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
