package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

// ErrNoRecipient is returned when no open id is configured for a role
var ErrNoRecipient = errors.New("no lark recipient for role")

// ApproverNotifier implements port.ApproverNotifier with interactive Lark cards
type ApproverNotifier struct {
	sender  MessageSender
	openIDs map[entity.ApprovalRole][]string
	baseURL string
	logger  *zap.Logger
}

// NewApproverNotifier creates a notifier sending to the open ids configured per role
func NewApproverNotifier(sender MessageSender, openIDs map[entity.ApprovalRole][]string, baseURL string, logger *zap.Logger) *ApproverNotifier {
	return &ApproverNotifier{
		sender:  sender,
		openIDs: openIDs,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// NotifyNextApprover sends the package card to every holder of the step's role.
// It fails only when nobody could be reached.
func (n *ApproverNotifier) NotifyNextApprover(ctx context.Context, p *entity.BhResponsPakke, step entity.ApprovalStep) error {
	recipients := n.openIDs[step.Role]
	if len(recipients) == 0 {
		return fmt.Errorf("%w %s", ErrNoRecipient, step.Role)
	}

	card, err := json.Marshal(n.buildCard(p, step))
	if err != nil {
		return fmt.Errorf("failed to marshal card content: %w", err)
	}

	var errs []error
	for _, openID := range recipients {
		if _, err := n.sender.SendMessage(ctx, "open_id", openID, "interactive", string(card)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(recipients) {
		return errors.Join(errs...)
	}
	if len(errs) > 0 {
		n.logger.Warn("Some approvers were not notified",
			zap.String("pakke_id", p.ID),
			zap.String("role", step.Role.String()),
			zap.Int("failed", len(errs)))
	}

	n.logger.Info("Approver notified",
		zap.String("pakke_id", p.ID),
		zap.String("case_id", p.CaseID),
		zap.String("role", step.Role.String()),
		zap.Int("recipients", len(recipients)-len(errs)))
	return nil
}

// buildCard lays out the Lark interactive card for a package
func (n *ApproverNotifier) buildCard(p *entity.BhResponsPakke, step entity.ApprovalStep) map[string]interface{} {
	lines := []string{
		fmt.Sprintf("**Sak:** %s", p.CaseID),
		fmt.Sprintf("**Vederlag:** %s kr", formatNOK(p.VederlagBelop)),
		fmt.Sprintf("**Frist:** %d dager (%s kr)", p.FristDager, formatNOK(p.FristBelop)),
		fmt.Sprintf("**Samlet:** %s kr", formatNOK(p.SamletBelop)),
		fmt.Sprintf("**Sendt av:** %s", displayName(p.SubmittedBy)),
	}

	elements := []interface{}{
		map[string]interface{}{
			"tag": "div",
			"text": map[string]interface{}{
				"tag":     "lark_md",
				"content": strings.Join(lines, "\n"),
			},
		},
	}
	if n.baseURL != "" {
		elements = append(elements, map[string]interface{}{
			"tag": "action",
			"actions": []interface{}{
				map[string]interface{}{
					"tag":  "button",
					"type": "primary",
					"text": map[string]interface{}{"tag": "plain_text", "content": "Åpne pakke"},
					"url":  fmt.Sprintf("%s/pakker/%s", n.baseURL, p.ID),
				},
			},
		})
	}

	return map[string]interface{}{
		"config": map[string]interface{}{"wide_screen_mode": true},
		"header": map[string]interface{}{
			"template": "blue",
			"title": map[string]interface{}{
				"tag":     "plain_text",
				"content": fmt.Sprintf("Godkjenning %s: svar på krav %s", step.Role, p.CaseID),
			},
		},
		"elements": elements,
	}
}

func displayName(a entity.Actor) string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// formatNOK renders an amount with space-separated thousands
func formatNOK(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// NoopNotifier logs instead of sending when Lark is not configured
type NoopNotifier struct {
	logger *zap.Logger
}

// NewNoopNotifier creates a notifier that only logs
func NewNoopNotifier(logger *zap.Logger) *NoopNotifier {
	return &NoopNotifier{logger: logger}
}

// NotifyNextApprover logs the step awaiting a decision
func (n *NoopNotifier) NotifyNextApprover(ctx context.Context, p *entity.BhResponsPakke, step entity.ApprovalStep) error {
	n.logger.Info("Approver notification skipped, lark disabled",
		zap.String("pakke_id", p.ID),
		zap.String("role", step.Role.String()))
	return nil
}

// Verify interface compliance
var (
	_ port.ApproverNotifier = (*ApproverNotifier)(nil)
	_ port.ApproverNotifier = (*NoopNotifier)(nil)
)
