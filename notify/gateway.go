package notify

import (
	"context"

	"github.com/warp/leave-engine/timeoff"
	"go.uber.org/zap"
)

// Gateway implements timeoff.Notifier over a Mailer and a ChatSender.
// Every failure is logged and reported as false.
type Gateway struct {
	Mailer Mailer
	Chat   ChatSender
	Logger *zap.Logger
}

var _ timeoff.Notifier = (*Gateway)(nil)

func NewGateway(mailer Mailer, chat ChatSender, logger *zap.Logger) *Gateway {
	if mailer == nil {
		mailer = noopMailer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{Mailer: mailer, Chat: chat, Logger: logger}
}

func (g *Gateway) NotifySupervisor(ctx context.Context, n timeoff.SupervisorNotice) bool {
	log := g.Logger.With(
		zap.String("application_id", n.ApplicationID),
		zap.String("event", string(n.Event)))

	if n.SupervisorEmail == "" {
		log.Warn("no supervisor email on file")
		return false
	}

	subject, body := SupervisorEmail(n)
	if err := g.Mailer.Send(ctx, n.SupervisorEmail, subject, body); err != nil {
		log.Error("supervisor email failed", zap.String("to", n.SupervisorEmail), zap.Error(err))
		return false
	}
	log.Info("supervisor email sent", zap.String("to", n.SupervisorEmail))
	return true
}

func (g *Gateway) NotifyIntern(ctx context.Context, chatID, text string) bool {
	if g.Chat == nil || isNilChat(g.Chat) {
		g.Logger.Debug("chat disabled, intern message dropped", zap.String("chat_id", chatID))
		return false
	}
	if err := g.Chat.SendMessage(ctx, chatID, text); err != nil {
		g.Logger.Error("intern chat message failed", zap.String("chat_id", chatID), zap.Error(err))
		return false
	}
	return true
}

// isNilChat catches a typed nil *ChatClient stored in the interface.
func isNilChat(c ChatSender) bool {
	cc, ok := c.(*ChatClient)
	return ok && cc == nil
}
