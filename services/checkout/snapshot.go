package checkout

import (
	"worldpay-checkout/models"
	"worldpay-checkout/services/capability"
	"worldpay-checkout/services/card"
	"worldpay-checkout/utils"
)

type FieldView struct {
	Display string `json:"display"`
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
}

type PopupView struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Snapshot is what the client renders. Raw card values are never included.
type Snapshot struct {
	SessionID    string                   `json:"session_id"`
	State        models.FlowState         `json:"state"`
	Terminal     bool                     `json:"terminal"`
	Payment      *models.PaymentRecord    `json:"payment,omitempty"`
	Total        string                   `json:"total,omitempty"`
	Capabilities capability.Capabilities  `json:"capabilities"`
	Challenge    *models.ChallengeContext `json:"challenge,omitempty"`
	Popup        *PopupView               `json:"popup,omitempty"`
	Form         map[card.Field]FieldView `json:"form,omitempty"`
	Brand        *card.BrandInfo          `json:"brand,omitempty"`
	Message      string                   `json:"message,omitempty"`
	ReportID     string                   `json:"report_id,omitempty"`
	Email        string                   `json:"email,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		SessionID:    c.id,
		State:        c.state,
		Terminal:     c.state.IsTerminal(),
		Payment:      c.record.Clone(),
		Capabilities: c.caps,
		Message:      c.message,
		ReportID:     c.reportID,
		Email:        c.email,
	}
	if c.record != nil {
		s.Total = utils.FormatAmount(utils.PaymentTotal(c.record.Items))
	}
	if c.challenge != nil {
		ch := *c.challenge
		s.Challenge = &ch
	}
	if c.popup != nil {
		s.Popup = &PopupView{URL: c.popupURL, Name: LoginPopupName}
	}
	if c.state == models.FlowForm {
		s.Form = make(map[card.Field]FieldView)
		for field, res := range c.form.Snapshot() {
			s.Form[field] = FieldView{Display: res.Display, Valid: res.Valid, Reason: res.Reason}
		}
		if info, ok := card.Info(c.form.Brand()); ok {
			s.Brand = &info
		}
	}
	return s
}
