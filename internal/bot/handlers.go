// Package bot binds the order-intake machine to Telegram updates.
package bot

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/vinylbot/core/telegram"
	"github.com/m3rciful/vinylbot/core/telegram/callbacks"
	"github.com/m3rciful/vinylbot/core/telegram/commands"
	"github.com/m3rciful/vinylbot/core/telegram/format"
	tghelpers "github.com/m3rciful/vinylbot/core/telegram/helpers"
	"github.com/m3rciful/vinylbot/core/telegram/keyboard"
	"github.com/m3rciful/vinylbot/core/telegram/middleware"
	"github.com/m3rciful/vinylbot/internal/flow"
	"github.com/m3rciful/vinylbot/internal/store"
)

// CallbackStartOrder is the callback key on the storefront's buy button.
const CallbackStartOrder = "start_order"

const msgNothingToCancel = "Nothing to cancel. Send /start to begin an order."

// Config wires the handlers' collaborators.
type Config struct {
	Flow   *flow.Machine
	Orders *store.Orders

	Product  string
	PhotoURL string
	// UnitAmountMinor is the single-unit price shown on the storefront card.
	UnitAmountMinor int64
	AdminID         int64
}

// Handlers owns all Telegram-facing handlers for the shop.
type Handlers struct {
	cfg Config
}

// New builds the handler set.
func New(cfg Config) (*Handlers, error) {
	if cfg.Flow == nil {
		return nil, fmt.Errorf("bot: flow machine is required")
	}
	if cfg.Orders == nil {
		return nil, fmt.Errorf("bot: order store is required")
	}
	if strings.TrimSpace(cfg.Product) == "" {
		return nil, fmt.Errorf("bot: product name is required")
	}
	return &Handlers{cfg: cfg}, nil
}

// Register binds commands and callbacks to the registry.
func (h *Handlers) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.Start,
		Description: "Show the product and start an order",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.Cancel,
		Description: "Abandon the order in progress",
	})
	reg.RegisterCommand("/orders", commands.Command{
		Handler:     middleware.RequireAdmin(h.cfg.AdminID, h.RecentOrders),
		Description: "List recent orders",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCallback(CallbackStartOrder, h.StartOrder)
	reg.RegisterCallback(flow.CallbackQuantity, h.Quantity)
}

// InProgress implements the conversation router contract.
func (h *Handlers) InProgress(userID int64) bool {
	return h.cfg.Flow.InProgress(userID)
}

// HandleText feeds a text update into the user's intake.
func (h *Handlers) HandleText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	reply, err := h.cfg.Flow.Text(ctx, c.Sender().ID, c.Text())
	return h.deliver(c, reply, err)
}

// Start shows the storefront card with a buy button.
func (h *Handlers) Start(c tele.Context) error {
	caption := fmt.Sprintf("🎵 *%s* 🎵\n\nPrice: %s\n\nClick below to buy now!",
		format.EscapeMarkdown(h.cfg.Product),
		flow.FormatAmount(h.cfg.UnitAmountMinor),
	)
	markup := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "🛒 Buy Now", Unique: CallbackStartOrder},
	})
	if h.cfg.PhotoURL != "" {
		return tghelpers.SendPhotoMD(c, h.cfg.PhotoURL, caption, markup)
	}
	return tghelpers.SendMD(c, caption, markup)
}

// StartOrder begins the intake when the buy button is pressed.
func (h *Handlers) StartOrder(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	reply, err := h.cfg.Flow.Start(ctx, c.Sender().ID)
	return h.deliver(c, reply, err)
}

// Quantity handles a quantity button press.
func (h *Handlers) Quantity(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	reply, err := h.cfg.Flow.Quantity(ctx, c.Sender().ID, callbacks.Payload(c))
	return h.deliver(c, reply, err)
}

// Cancel abandons the intake in progress.
func (h *Handlers) Cancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	reply, err := h.cfg.Flow.Cancel(ctx, c.Sender().ID)
	if errors.Is(err, flow.ErrNoSession) {
		return tghelpers.SendMD(c, msgNothingToCancel)
	}
	return h.deliver(c, reply, err)
}

// RecentOrders lists the latest orders. Registered admin-only.
func (h *Handlers) RecentOrders(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	orders, err := h.cfg.Orders.Recent(ctx, 10)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return tghelpers.SendMD(c, "No orders yet.")
	}

	var b strings.Builder
	b.WriteString("*Recent orders:*\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "\n#%d %s: %dx %s (%s)",
			o.ID,
			format.EscapeMarkdown(o.Name),
			o.Quantity,
			flow.FormatAmount(o.AmountMinor),
			o.PaymentStatus,
		)
	}
	return tghelpers.SendMD(c, b.String())
}

// deliver sends the machine's reply and decides which errors bubble up.
// Validation failures and missing sessions end at the re-prompt; collaborator
// failures propagate so the router logs their error code.
func (h *Handlers) deliver(c tele.Context, reply flow.Reply, err error) error {
	if reply.Text != "" {
		var markup *tele.ReplyMarkup
		switch {
		case len(reply.Buttons) > 0:
			btns := make([]keyboard.InlineBtn, 0, len(reply.Buttons))
			for _, b := range reply.Buttons {
				btns = append(btns, keyboard.InlineBtn{Text: b.Label, Unique: b.Key, Data: b.Data})
			}
			markup = keyboard.InlineButtonsNPerRow(btns, 3)
		case reply.LinkURL != "":
			markup = keyboard.URLButton(reply.LinkLabel, reply.LinkURL)
		}
		var sendErr error
		if markup != nil {
			sendErr = tghelpers.SendMD(c, reply.Text, markup)
		} else {
			sendErr = tghelpers.SendMD(c, reply.Text)
		}
		if sendErr != nil {
			return sendErr
		}
	}

	if err == nil {
		return nil
	}
	var verr *flow.ValidationError
	if errors.As(err, &verr) || errors.Is(err, flow.ErrNoSession) {
		return nil
	}
	return err
}
