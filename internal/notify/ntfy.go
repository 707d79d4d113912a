package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const userAgent = "neonconvert/1.0"

// Ntfy публикует уведомления в топик ntfy.
type Ntfy struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// NewNtfy создаёт Notifier для ntfy. Пустой endpoint даёт Noop.
func NewNtfy(endpoint string, timeout time.Duration, log zerolog.Logger) Notifier {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Noop{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Ntfy{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.With().Str("component", "ntfy").Logger(),
	}
}

// Notify отправляет уведомление. Ошибка доставки только логируется.
func (n *Ntfy) Notify(title, message string, severity Severity) {
	if err := n.send(context.Background(), title, message, severity); err != nil {
		n.log.Warn().Err(err).Str("title", title).Msg("уведомление не доставлено")
	}
}

func (n *Ntfy) send(ctx context.Context, title, message string, severity Severity) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("не удалось создать запрос ntfy: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if title != "" {
		req.Header.Set("Title", title)
	}
	req.Header.Set("Tags", "neonconvert,"+string(severity))
	if p := priority(severity); p != "default" {
		req.Header.Set("Priority", p)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("не удалось отправить уведомление ntfy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy вернул %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func priority(severity Severity) string {
	switch severity {
	case SeverityError:
		return "high"
	case SeverityInfo:
		return "low"
	default:
		return "default"
	}
}
