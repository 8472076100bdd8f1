package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/payout-bot/internal/catalog"
)

// Slash command names
const (
	commandSetup      = "setup"
	commandAddStock   = "addstock-bulk"
	commandGen        = "gen"
	commandStock      = "stock"
	commandStats      = "stats"
	commandClearStock = "clearstock"
)

// Option names
const (
	optionService    = "service"
	optionFile       = "file"
	optionLogChannel = "log_channel"
)

// Component custom id prefixes. Arguments follow after customIDSeparator.
const (
	customIDSetupRole    = "setup_role"
	customIDClearConfirm = "clear_confirm"
	customIDClearCancel  = "clear_cancel"
	customIDSeparator    = ":"
)

var (
	errGuildOnly      = errors.New("commands can only be used inside a server")
	errUnknownCommand = errors.New("unknown command")
	errMissingOption  = errors.New("missing option")
	errUnknownService = errors.New("unknown service")
)

// request is the closed set of interactions the bot understands. Each
// variant carries its already-validated input.
type request interface {
	name() string
}

type setupRequest struct {
	LogChannelID string
}

type addStockRequest struct {
	Service  catalog.Service
	URL      string
	Filename string
}

type genRequest struct {
	Service catalog.Service
}

type stockRequest struct{}

type statsRequest struct{}

type clearStockRequest struct {
	Service catalog.Service
}

type roleSelectRequest struct {
	RoleID       string
	LogChannelID string
}

type confirmClearRequest struct {
	Service catalog.Service
}

type cancelClearRequest struct{}

func (setupRequest) name() string        { return commandSetup }
func (addStockRequest) name() string     { return commandAddStock }
func (genRequest) name() string          { return commandGen }
func (stockRequest) name() string        { return commandStock }
func (statsRequest) name() string        { return commandStats }
func (clearStockRequest) name() string   { return commandClearStock }
func (roleSelectRequest) name() string   { return customIDSetupRole }
func (confirmClearRequest) name() string { return customIDClearConfirm }
func (cancelClearRequest) name() string  { return customIDClearCancel }

// parseRequest turns an interaction into a typed request or explains why it
// cannot be handled.
func parseRequest(services *catalog.Registry, i *discordgo.InteractionCreate) (request, error) {
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return nil, errGuildOnly
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		return parseCommand(services, i.ApplicationCommandData())
	case discordgo.InteractionMessageComponent:
		return parseComponent(services, i.MessageComponentData())
	default:
		return nil, fmt.Errorf("%w: interaction type %s", errUnknownCommand, i.Type)
	}
}

func parseCommand(services *catalog.Registry, data discordgo.ApplicationCommandInteractionData) (request, error) {
	opts := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options))
	for _, opt := range data.Options {
		opts[opt.Name] = opt
	}

	switch data.Name {
	case commandSetup:
		return setupRequest{LogChannelID: optionID(opts[optionLogChannel])}, nil

	case commandAddStock:
		svc, err := serviceOption(services, opts)
		if err != nil {
			return nil, err
		}
		attachmentID := optionID(opts[optionFile])
		if attachmentID == "" || data.Resolved == nil {
			return nil, fmt.Errorf("%w: %s", errMissingOption, optionFile)
		}
		att, ok := data.Resolved.Attachments[attachmentID]
		if !ok || att == nil {
			return nil, fmt.Errorf("%w: %s", errMissingOption, optionFile)
		}
		return addStockRequest{Service: svc, URL: att.URL, Filename: att.Filename}, nil

	case commandGen:
		svc, err := serviceOption(services, opts)
		if err != nil {
			return nil, err
		}
		return genRequest{Service: svc}, nil

	case commandStock:
		return stockRequest{}, nil

	case commandStats:
		return statsRequest{}, nil

	case commandClearStock:
		svc, err := serviceOption(services, opts)
		if err != nil {
			return nil, err
		}
		return clearStockRequest{Service: svc}, nil

	default:
		return nil, fmt.Errorf("%w: %s", errUnknownCommand, data.Name)
	}
}

func parseComponent(services *catalog.Registry, data discordgo.MessageComponentInteractionData) (request, error) {
	prefix, arg, _ := strings.Cut(data.CustomID, customIDSeparator)

	switch prefix {
	case customIDSetupRole:
		if len(data.Values) == 0 || data.Values[0] == "" {
			return nil, fmt.Errorf("%w: role", errMissingOption)
		}
		return roleSelectRequest{RoleID: data.Values[0], LogChannelID: arg}, nil

	case customIDClearConfirm:
		svc, ok := services.Lookup(arg)
		if !ok {
			return nil, fmt.Errorf("%w: %q", errUnknownService, arg)
		}
		return confirmClearRequest{Service: svc}, nil

	case customIDClearCancel:
		return cancelClearRequest{}, nil

	default:
		return nil, fmt.Errorf("%w: component %q", errUnknownCommand, data.CustomID)
	}
}

func serviceOption(services *catalog.Registry, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (catalog.Service, error) {
	opt, ok := opts[optionService]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionString {
		return catalog.Service{}, fmt.Errorf("%w: %s", errMissingOption, optionService)
	}
	svc, ok := services.Lookup(opt.StringValue())
	if !ok {
		return catalog.Service{}, fmt.Errorf("%w: %q", errUnknownService, opt.StringValue())
	}
	return svc, nil
}

// optionID reads snowflake-valued options (channels, attachments), which
// arrive as strings.
func optionID(opt *discordgo.ApplicationCommandInteractionDataOption) string {
	if opt == nil {
		return ""
	}
	id, _ := opt.Value.(string)
	return id
}

func setupRoleCustomID(logChannelID string) string {
	if logChannelID == "" {
		return customIDSetupRole
	}
	return customIDSetupRole + customIDSeparator + logChannelID
}

func clearConfirmCustomID(t catalog.ServiceType) string {
	return customIDClearConfirm + customIDSeparator + string(t)
}
