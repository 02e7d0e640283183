package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/Tchindavaldo/yuunna-backend/internal/config"
	"github.com/Tchindavaldo/yuunna-backend/internal/model"

	"gopkg.in/gomail.v2"
)

// mailSender 抽象 gomail.Dialer，便于测试。
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier 在导入任务完成后发送汇总邮件。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
	sender mailSender
}

// NewEmailNotifier 创建邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
		sender: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
	}
}

// SendImportDigest 发送一次导入的结果汇总。
//
// 参数:
//
//	ctx: 上下文
//	toEmail: 收件人，为空时跳过
//	keyword: 导入关键词
//	saved: 本次入库的商品
//	skipped: 因重复或校验失败被跳过的数量
func (n *EmailNotifier) SendImportDigest(ctx context.Context, toEmail, keyword string, saved []model.Product, skipped int) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip import digest")
		return nil
	}
	if strings.TrimSpace(toEmail) == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", fmt.Sprintf("[Yuunna] Import Taobao « %s » : %d produits", keyword, len(saved)))
	m.SetBody("text/html", buildDigestBody(keyword, saved, skipped))

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	n.logger.Info("import digest sent", slog.String("to", toEmail), slog.Int("saved", len(saved)))
	return nil
}

func buildDigestBody(keyword string, saved []model.Product, skipped int) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="UTF-8" /></head>`)
	b.WriteString(`<body style="font-family: Arial, sans-serif; color: #1f2937;">`)
	fmt.Fprintf(&b, `<h2>Import « %s »</h2>`, html.EscapeString(keyword))
	fmt.Fprintf(&b, `<p>%d produits ajoutés, %d ignorés.</p><ul>`, len(saved), skipped)
	for _, p := range saved {
		fmt.Fprintf(&b, `<li><a href="%s">%s</a> · ¥ %.2f</li>`,
			html.EscapeString(p.SourceLink), html.EscapeString(p.TitleTranslated), p.Price)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}
