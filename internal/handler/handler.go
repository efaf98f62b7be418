package handler

import (
	"context"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/clanhall/taskwheel/internal/catalog"
	"github.com/clanhall/taskwheel/internal/config"
	"github.com/clanhall/taskwheel/internal/draw"
	"github.com/clanhall/taskwheel/internal/ledger"
	"github.com/clanhall/taskwheel/internal/messenger"
	"github.com/clanhall/taskwheel/internal/rotation"
)

// Handler holds all dependencies needed by command handlers.
type Handler struct {
	bot       *bot.Bot
	cfg       *config.Config
	catalog   *catalog.Service
	instances *rotation.InstanceLifecycle
	votes     *rotation.VoteLifecycle
	ledger    *ledger.Service
	draw      *draw.Service
	gateway   messenger.Gateway
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot       *bot.Bot
	Cfg       *config.Config
	Catalog   *catalog.Service
	Instances *rotation.InstanceLifecycle
	Votes     *rotation.VoteLifecycle
	Ledger    *ledger.Service
	Draw      *draw.Service
	Gateway   messenger.Gateway
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:       deps.Bot,
		cfg:       deps.Cfg,
		catalog:   deps.Catalog,
		instances: deps.Instances,
		votes:     deps.Votes,
		ledger:    deps.Ledger,
		draw:      deps.Draw,
		gateway:   deps.Gateway,
	}
}

// Register wires all command handlers.
func (h *Handler) Register() {
	h.command("/task", h.handleTask)
	h.command("/completions", h.handleCompletions)
	h.command("/addtask", h.handleAddTask)
	h.command("/edittask", h.handleEditTask)
	h.command("/reloadtasks", h.handleReloadTasks)
	h.command("/bonustask", h.handleBonusTask)
	h.command("/startvote", h.handleStartVote)
	h.command("/cancelvote", h.handleCancelVote)
	h.command("/redraw", h.handleRedraw)
	h.command("/draw", h.handleDraw)
}

func (h *Handler) command(pattern string, fn bot.HandlerFunc) {
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, pattern, bot.MatchTypePrefix, fn)
}

func (h *Handler) reply(ctx context.Context, update *models.Update, text string) {
	h.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	})
}

// requireAdmin answers with a refusal when the sender is not an admin.
func (h *Handler) requireAdmin(ctx context.Context, update *models.Update) bool {
	if update.Message == nil || update.Message.From == nil {
		return false
	}
	if !h.cfg.IsAdmin(strconv.FormatInt(update.Message.From.ID, 10)) {
		h.reply(ctx, update, "You are not allowed to do that.")
		return false
	}
	return true
}
